package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Tutor Schedule API",
        "description": "Keeps class sessions in line with weekly templates and reports teacher workload.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Scheduling", "description": "Session reconciliation, workload and run history"},
        {"name": "Operations", "description": "Health, readiness and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Operations"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["Operations"],
                "summary": "Readiness probe, pings the database",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Database unreachable"}
                }
            }
        },
        "/schedule-sync/run": {
            "post": {
                "tags": ["Scheduling"],
                "summary": "Reconcile class sessions with weekly templates",
                "description": "Creates, updates and removes future sessions of a month so they match the weekly templates. Manual and past sessions are never touched. At most one run per month is in flight.",
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "month", "in": "query", "type": "string", "description": "YYYY-MM, defaults to the current month in the organization timezone"},
                    {"name": "mode", "in": "query", "type": "string", "enum": ["future-only", "include-held"]},
                    {"name": "classId", "in": "query", "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/ScheduleSyncRequest"}}
                ],
                "responses": {
                    "200": {"description": "Run completed", "schema": {"$ref": "#/definitions/ScheduleSyncResult"}},
                    "400": {"description": "Invalid month or mode", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not an administrator", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Job already running for this month", "schema": {"$ref": "#/definitions/ScheduleSyncFailure"}},
                    "500": {"description": "Run failed, lock released", "schema": {"$ref": "#/definitions/ScheduleSyncFailure"}}
                }
            }
        },
        "/schedule-sync/workload": {
            "get": {
                "tags": ["Scheduling"],
                "summary": "Per-teacher workload of a month",
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "month", "in": "query", "type": "string"},
                    {"name": "classId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedule-sync/workload/export": {
            "get": {
                "tags": ["Scheduling"],
                "summary": "Download the workload of a month",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "month", "in": "query", "type": "string"},
                    {"name": "classId", "in": "query", "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}}
                }
            }
        },
        "/schedule-sync/locks": {
            "get": {
                "tags": ["Scheduling"],
                "summary": "Run history of batch jobs",
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "job", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer", "minimum": 1, "maximum": 200}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "ScheduleSyncRequest": {
            "type": "object",
            "properties": {
                "month": {"type": "string", "example": "2025-09"},
                "mode": {"type": "string", "enum": ["future-only", "include-held"]},
                "classId": {"type": "string"}
            }
        },
        "Session": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "class_id": {"type": "string"},
                "date": {"type": "string", "example": "2025-09-15"},
                "start_time": {"type": "string", "example": "09:00:00"},
                "end_time": {"type": "string", "example": "10:00:00"},
                "teacher_id": {"type": "string"},
                "status": {"type": "string", "enum": ["Scheduled", "Held", "Canceled"]},
                "is_manual": {"type": "boolean"}
            }
        },
        "SkippedConflict": {
            "type": "object",
            "properties": {
                "class": {"type": "string"},
                "date": {"type": "string"},
                "time": {"type": "string", "example": "09:00:00-10:00:00"},
                "teacherId": {"type": "string"},
                "reason": {"type": "string", "example": "Teacher time conflict"}
            }
        },
        "SessionChangeList": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/Session"}}
            }
        },
        "ScheduleSyncResult": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "month": {"type": "string"},
                "mode": {"type": "string"},
                "classId": {"type": "string"},
                "normalized": {"type": "integer"},
                "normalizedIds": {"type": "array", "items": {"type": "string"}},
                "created": {"$ref": "#/definitions/SessionChangeList"},
                "updated": {"type": "object"},
                "removed": {"$ref": "#/definitions/SessionChangeList"},
                "skippedConflicts": {"type": "array", "items": {"$ref": "#/definitions/SkippedConflict"}},
                "attention": {"type": "object"},
                "perTeacher": {"type": "array", "items": {"type": "object"}}
            }
        },
        "ScheduleSyncFailure": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "reason": {"type": "string"},
                "error": {"type": "string"}
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
