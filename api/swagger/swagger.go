package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "School Health API",
        "description": "Health signal lifecycle and outbreak risk aggregation for the school portal.",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": ["http", "https"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Reports", "description": "Student health report lifecycle"},
        {"name": "Dashboard", "description": "Admin outbreak dashboard, actions and risk overrides"},
        {"name": "Resources", "description": "Location and symptom reference data"}
    ],
    "paths": {
        "/reports": {
            "post": {
                "tags": ["Reports"],
                "summary": "Submit a health report",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CreateReportRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/HealthReport"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/APIError"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/APIError"}}
                }
            },
            "get": {
                "tags": ["Reports"],
                "summary": "List all reports (admin)",
                "parameters": [
                    {"in": "query", "name": "status", "type": "string", "enum": ["pending", "investigating", "reviewed", "resolved"]},
                    {"in": "query", "name": "location", "type": "string"},
                    {"in": "query", "name": "from", "type": "string", "description": "YYYY-MM-DD or RFC 3339"},
                    {"in": "query", "name": "to", "type": "string", "description": "YYYY-MM-DD or RFC 3339"},
                    {"in": "query", "name": "limit", "type": "integer"},
                    {"in": "query", "name": "offset", "type": "integer"}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "headers": {"X-Total-Count": {"type": "integer"}},
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/HealthReport"}}
                    },
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/reports/me": {
            "get": {
                "tags": ["Reports"],
                "summary": "List the caller's reports",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/HealthReport"}}}
                }
            }
        },
        "/reports/export": {
            "get": {
                "tags": ["Reports"],
                "summary": "Export reports as CSV or PDF (admin)",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"in": "query", "name": "format", "type": "string", "enum": ["csv", "pdf"]},
                    {"in": "query", "name": "status", "type": "string"},
                    {"in": "query", "name": "location", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Attachment", "schema": {"type": "file"}},
                    "400": {"description": "Unsupported format", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/reports/{id}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Get a report (admin or owner)",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/HealthReport"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/reports/{id}/status": {
            "patch": {
                "tags": ["Reports"],
                "summary": "Transition a report",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/UpdateStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/HealthReport"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/dashboard": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Admin dashboard",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/DashboardResponse"}}
                }
            }
        },
        "/dashboard/aggregates": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Aggregate window for a location",
                "parameters": [
                    {"in": "query", "name": "location", "required": true, "type": "string"},
                    {"in": "query", "name": "date", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/AggregateWindow"}}
                }
            }
        },
        "/dashboard/actions": {
            "post": {
                "tags": ["Dashboard"],
                "summary": "Create a suggested action",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CreateActionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/SuggestedAction"}}
                }
            }
        },
        "/dashboard/actions/{id}/status": {
            "patch": {
                "tags": ["Dashboard"],
                "summary": "Transition a suggested action",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/UpdateStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SuggestedAction"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/dashboard/bayesian/{location}/reset": {
            "post": {
                "tags": ["Dashboard"],
                "summary": "Override a location's outbreak risk state",
                "parameters": [
                    {"in": "path", "name": "location", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "schema": {"type": "object", "properties": {"prior": {"type": "number"}}}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/BayesianParameter"}}
                }
            }
        },
        "/resources/locations": {
            "get": {
                "tags": ["Resources"],
                "summary": "List locations",
                "responses": {"200": {"description": "OK", "headers": {"X-Cache": {"type": "string"}}}}
            }
        },
        "/resources/symptoms": {
            "get": {
                "tags": ["Resources"],
                "summary": "List symptoms",
                "responses": {"200": {"description": "OK", "headers": {"X-Cache": {"type": "string"}}}}
            }
        }
    },
    "definitions": {
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "CreateReportRequest": {
            "type": "object",
            "required": ["symptoms", "location"],
            "properties": {
                "symptoms": {"type": "array", "items": {"type": "string"}},
                "location": {"type": "string"},
                "note": {"type": "string", "maxLength": 1000}
            }
        },
        "UpdateStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {"status": {"type": "string"}}
        },
        "CreateActionRequest": {
            "type": "object",
            "required": ["description"],
            "properties": {
                "description": {"type": "string"},
                "location": {"type": "string"}
            }
        },
        "StatusHistoryEntry": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "actorId": {"type": "string"},
                "actorRole": {"type": "string"},
                "timestamp": {"type": "string", "format": "date-time"}
            }
        },
        "HealthReport": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "reporterId": {"type": "string"},
                "symptoms": {"type": "array", "items": {"type": "string"}},
                "location": {"type": "string"},
                "note": {"type": "string"},
                "status": {"type": "string"},
                "createdAt": {"type": "string", "format": "date-time"},
                "updatedAt": {"type": "string", "format": "date-time"},
                "statusHistory": {"type": "array", "items": {"$ref": "#/definitions/StatusHistoryEntry"}}
            }
        },
        "AggregateWindow": {
            "type": "object",
            "properties": {
                "locationId": {"type": "string"},
                "bucketStart": {"type": "string", "format": "date-time"},
                "bucketEnd": {"type": "string", "format": "date-time"},
                "total": {"type": "integer"},
                "bySymptom": {"type": "object", "additionalProperties": {"type": "integer"}},
                "byStatus": {"type": "object", "additionalProperties": {"type": "integer"}},
                "distinctReporters": {"type": "integer"}
            }
        },
        "BayesianParameter": {
            "type": "object",
            "properties": {
                "location": {"type": "string"},
                "prior": {"type": "number"},
                "likelihood": {"type": "number"},
                "posterior": {"type": "number"},
                "evidenceCount": {"type": "integer"},
                "observedCount": {"type": "integer"},
                "expectedCount": {"type": "number"},
                "windowStart": {"type": "string", "format": "date-time"},
                "lastUpdated": {"type": "string", "format": "date-time"}
            }
        },
        "SuggestedAction": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "description": {"type": "string"},
                "location": {"type": "string"},
                "priority": {"type": "string"},
                "status": {"type": "string"},
                "source": {"type": "string"},
                "createdBy": {"type": "string"},
                "createdAt": {"type": "string", "format": "date-time"},
                "updatedAt": {"type": "string", "format": "date-time"},
                "snapshotId": {"type": "string"},
                "riskScore": {"type": "number"}
            }
        },
        "DashboardResponse": {
            "type": "object",
            "properties": {
                "snapshotId": {"type": "string"},
                "stats": {"type": "object"},
                "hotspots": {"type": "array", "items": {"type": "object"}},
                "predictions": {"type": "array", "items": {"type": "object"}},
                "actions": {"type": "array", "items": {"$ref": "#/definitions/SuggestedAction"}},
                "bayesian": {"$ref": "#/definitions/BayesianParameter"},
                "bayesianByLocation": {"type": "array", "items": {"$ref": "#/definitions/BayesianParameter"}}
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
