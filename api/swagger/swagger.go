package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "WigShare API",
        "description": "Wig request review and donation workflow",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and token management"},
        {"name": "Requests", "description": "Wig request lifecycle"},
        {"name": "Analyses", "description": "Per-institution request reviews"},
        {"name": "Donations", "description": "Donation finalization and reporting"},
        {"name": "Wigs", "description": "Institution wig catalog"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests": {
            "get": {
                "tags": ["Requests"],
                "summary": "List requests",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Requests"],
                "summary": "Submit a wig request",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "note", "in": "formData", "type": "string"},
                    {"name": "evidence", "in": "formData", "type": "file", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}": {
            "get": {
                "tags": ["Requests"],
                "summary": "Get a request",
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "patch": {
                "tags": ["Requests"],
                "summary": "Update the request note",
                "parameters": [
                    {"name": "id", "in": "path", "type": "integer", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateRequestNoteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Requests"],
                "summary": "Delete an open request",
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "422": {"description": "Request already reviewed or closed"}
                }
            }
        },
        "/requests/{id}/status": {
            "patch": {
                "tags": ["Requests"],
                "summary": "Set the overall request status",
                "parameters": [
                    {"name": "id", "in": "path", "type": "integer", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateRequestStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Invalid transition"}
                }
            }
        },
        "/requests/{id}/cancel": {
            "post": {
                "tags": ["Requests"],
                "summary": "Cancel a request and cascade to open analyses",
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Request already final"}
                }
            }
        },
        "/requests/{id}/analyses": {
            "get": {
                "tags": ["Analyses"],
                "summary": "List analyses of one request",
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}/summary": {
            "get": {
                "tags": ["Analyses"],
                "summary": "Per-status counts across a request's analyses",
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analyses": {
            "get": {
                "tags": ["Analyses"],
                "summary": "List the calling institution's analyses",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Analyses"],
                "summary": "Claim a request for review",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ClaimAnalysisRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Institution already reviewing this request"}
                }
            }
        },
        "/analyses/{id}": {
            "patch": {
                "tags": ["Analyses"],
                "summary": "Advance an analysis",
                "parameters": [
                    {"name": "id", "in": "path", "type": "integer", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AdvanceAnalysisRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Concurrent modification"},
                    "422": {"description": "Invalid transition"}
                }
            },
            "delete": {
                "tags": ["Analyses"],
                "summary": "Withdraw a pending analysis",
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {
                    "204": {"description": "Withdrawn"},
                    "422": {"description": "Analysis no longer pending"}
                }
            }
        },
        "/donations": {
            "get": {
                "tags": ["Donations"],
                "summary": "List donations",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Donations"],
                "summary": "Donate a wig to an approved request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateDonationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Wig already donated"},
                    "412": {"description": "Precondition failed"}
                }
            }
        },
        "/donations/{id}/revert": {
            "post": {
                "tags": ["Donations"],
                "summary": "Revert a recent donation",
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {
                    "204": {"description": "Reverted"},
                    "422": {"description": "Revert window closed"}
                }
            }
        },
        "/donations/export": {
            "get": {
                "tags": ["Donations"],
                "summary": "Export donation history as CSV",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/wigs": {
            "get": {
                "tags": ["Wigs"],
                "summary": "List wigs",
                "parameters": [
                    {"name": "available", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Wigs"],
                "summary": "Register a wig",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateWigRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "UpdateRequestNoteRequest": {
            "type": "object",
            "properties": {
                "note": {"type": "string"}
            },
            "required": ["note"]
        },
        "UpdateRequestStatusRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "note": {"type": "string"}
            },
            "required": ["status"]
        },
        "ClaimAnalysisRequest": {
            "type": "object",
            "properties": {
                "request_id": {"type": "integer"},
                "notes": {"type": "string"}
            },
            "required": ["request_id"]
        },
        "AdvanceAnalysisRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "notes": {"type": "string"}
            },
            "required": ["status"]
        },
        "CreateDonationRequest": {
            "type": "object",
            "properties": {
                "wig_id": {"type": "integer"},
                "request_id": {"type": "integer"},
                "note": {"type": "string"}
            },
            "required": ["wig_id", "request_id"]
        },
        "CreateWigRequest": {
            "type": "object",
            "properties": {
                "hair_type": {"type": "string"},
                "color": {"type": "string"},
                "length": {"type": "string"},
                "size": {"type": "string"}
            },
            "required": ["hair_type", "color"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
