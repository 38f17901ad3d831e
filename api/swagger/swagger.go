package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Roster Sync API",
        "description": "Draft sync and submission gating for attendance and grade entry",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Sessions", "description": "Attendance and grade editing sessions"},
        {"name": "Ops", "description": "Probes and counters"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Ops"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["Ops"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Draft backend unreachable"}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Ops"],
                "summary": "Aggregated service counters",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Admins only", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Open an editing session",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/OpenSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}": {
            "delete": {
                "tags": ["Sessions"],
                "summary": "Close an editing session",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Closed"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/selection": {
            "put": {
                "tags": ["Sessions"],
                "summary": "Select the course offering and date to annotate",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/SelectKeyRequest"}}
                ],
                "responses": {
                    "200": {"description": "Working set", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "408": {"description": "Request abandoned before the draft was read", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Superseded by a newer selection", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Roster Service unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/records": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Get the working set for the selected key",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Working set", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No selection", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/records/{entityId}": {
            "patch": {
                "tags": ["Sessions"],
                "summary": "Edit one student's annotation",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "path", "name": "entityId", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/EditRecordRequest"}}
                ],
                "responses": {
                    "200": {"description": "Working set", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid value", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Submission in flight", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Student not eligible", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/records/bulk": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Apply one value to many students",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/BulkEditRequest"}}
                ],
                "responses": {
                    "200": {"description": "Bulk edit summary", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Submission in flight", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/submit": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Submit the working set to the Roster Service",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Submission outcome", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Submission in flight", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Prerequisite missing", "schema": {"$ref": "#/definitions/GateBlockEnvelope"}},
                    "422": {"description": "Nothing to submit", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Roster Service unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "504": {"description": "Roster Service timed out", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/draft": {
            "delete": {
                "tags": ["Sessions"],
                "summary": "Discard the draft and reset to committed values",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Working set", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/export": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Download the working set as a roster sheet",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "query", "name": "format", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}}
                }
            }
        },
        "/sessions/{id}/events": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Stream session events",
                "description": "Upgrades to a websocket. Browsers pass the token as access_token.",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "query", "name": "access_token", "type": "string"}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"}
                }
            }
        }
    },
    "definitions": {
        "AnnotationValue": {
            "description": "Attendance status string (present, absent, late, excused), a numeric grade, or null when unset"
        },
        "OpenSessionRequest": {
            "type": "object",
            "required": ["workflow"],
            "properties": {
                "workflow": {"type": "string", "enum": ["attendance", "grades"]}
            }
        },
        "SelectKeyRequest": {
            "type": "object",
            "required": ["course_offering_id", "date"],
            "properties": {
                "course_offering_id": {"type": "string"},
                "date": {"type": "string", "format": "date"}
            }
        },
        "EditRecordRequest": {
            "type": "object",
            "properties": {
                "value": {"$ref": "#/definitions/AnnotationValue"},
                "notes": {"type": "string", "maxLength": 500}
            }
        },
        "BulkEditRequest": {
            "type": "object",
            "properties": {
                "value": {"$ref": "#/definitions/AnnotationValue"},
                "entity_ids": {"type": "array", "items": {"type": "string"}},
                "only_unset": {"type": "boolean"},
                "reset_notes": {"type": "boolean"},
                "notes": {"type": "string", "maxLength": 500}
            }
        },
        "GateBlock": {
            "type": "object",
            "properties": {
                "workflow": {"type": "string"},
                "course_offering_id": {"type": "string"},
                "date": {"type": "string"},
                "prerequisite": {"type": "string"},
                "remedy_path": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "GateBlockEnvelope": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"},
                        "status": {"type": "integer"},
                        "details": {"$ref": "#/definitions/GateBlock"}
                    }
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
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
