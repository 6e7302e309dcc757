// Package swagger registers the OpenAPI document served under /swagger.
// Regenerate with: swag init -g cmd/api/main.go -o api/swagger
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/stock": {"get": {"security": [{"BearerAuth": []}], "tags": ["stock"], "summary": "Get current stock"}},
        "/api/stock/add": {"post": {"security": [{"BearerAuth": []}], "tags": ["stock"], "summary": "Add stock"}},
        "/api/stock/count": {"post": {"security": [{"BearerAuth": []}], "tags": ["stock"], "summary": "Count stock"}},
        "/api/stock/reconcile": {"get": {"security": [{"BearerAuth": []}], "tags": ["stock"], "summary": "Reconcile balance"}},
        "/api/branches/{id}/stock": {"get": {"security": [{"BearerAuth": []}], "tags": ["stock"], "summary": "List branch stock"}},
        "/api/products/{id}/movements": {"get": {"security": [{"BearerAuth": []}], "tags": ["stock"], "summary": "Movement history"}},
        "/api/transfers": {"post": {"security": [{"BearerAuth": []}], "tags": ["transfers"], "summary": "Transfer stock"}},
        "/api/transfers/{id}": {"get": {"security": [{"BearerAuth": []}], "tags": ["transfers"], "summary": "Get transfer"}},
        "/api/issue-vouchers": {"post": {"security": [{"BearerAuth": []}], "tags": ["vouchers"], "summary": "Create voucher draft"}},
        "/api/return-vouchers": {"post": {"security": [{"BearerAuth": []}], "tags": ["vouchers"], "summary": "Create voucher draft"}},
        "/api/purchase-orders": {"post": {"security": [{"BearerAuth": []}], "tags": ["vouchers"], "summary": "Create voucher draft"}},
        "/api/purchase-orders/{id}/receive": {"post": {"security": [{"BearerAuth": []}], "tags": ["vouchers"], "summary": "Receive purchase order"}},
        "/api/vouchers": {"get": {"security": [{"BearerAuth": []}], "tags": ["vouchers"], "summary": "List vouchers"}},
        "/api/vouchers/{id}": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["vouchers"], "summary": "Get voucher"},
            "delete": {"security": [{"BearerAuth": []}], "tags": ["vouchers"], "summary": "Delete voucher draft"}
        },
        "/api/vouchers/{id}/approve": {"post": {"security": [{"BearerAuth": []}], "tags": ["vouchers"], "summary": "Approve voucher"}},
        "/api/vouchers/{id}/cancel": {"post": {"security": [{"BearerAuth": []}], "tags": ["vouchers"], "summary": "Cancel voucher draft"}},
        "/api/voucher-lines/{id}/remaining-returnable": {"get": {"security": [{"BearerAuth": []}], "tags": ["vouchers"], "summary": "Remaining returnable quantity"}},
        "/api/products": {"post": {"security": [{"BearerAuth": []}], "tags": ["catalog"], "summary": "Create catalog entry"}},
        "/api/branches": {"post": {"security": [{"BearerAuth": []}], "tags": ["catalog"], "summary": "Create catalog entry"}},
        "/api/partners": {"post": {"security": [{"BearerAuth": []}], "tags": ["catalog"], "summary": "Create catalog entry"}},
        "/api/users": {"post": {"security": [{"BearerAuth": []}], "tags": ["catalog"], "summary": "Create catalog entry"}},
        "/api/branch-permissions": {"post": {"security": [{"BearerAuth": []}], "tags": ["catalog"], "summary": "Create catalog entry"}},
        "/api/audit-logs": {"get": {"security": [{"BearerAuth": []}], "tags": ["audit"], "summary": "Get audit logs"}}
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Stock Ledger API",
	Description:      "Multi-branch stock ledger with issue, return and purchase order vouchers.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
