package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "LabSphere API",
        "description": "Computer lab and classroom management service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, token rotation and password management"},
        {"name": "Users", "description": "Account management"},
        {"name": "Labs", "description": "Physical lab management"},
        {"name": "Computers", "description": "Lab workstation inventory"},
        {"name": "Classes", "description": "Course sections bound to a lab"},
        {"name": "Timetable", "description": "Recurring weekly slots with conflict detection"},
        {"name": "Sessions", "description": "One-off lab sessions with conflict detection"},
        {"name": "Enrollments", "description": "Student enrollment and seat placement"},
        {"name": "Groups", "description": "Group and computer assignment"},
        {"name": "Assignments", "description": "Class assignments"},
        {"name": "Submissions", "description": "Student submissions and grading"},
        {"name": "Exports", "description": "Roster and timetable exports"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/timetable/check": {
            "post": {
                "summary": "Check a proposed slot for schedule conflicts",
                "tags": ["Timetable"],
                "responses": {
                    "200": {"description": "Conflict result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/check": {
            "post": {
                "summary": "Check a proposed session for schedule conflicts",
                "tags": ["Sessions"],
                "responses": {
                    "200": {"description": "Conflict result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
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
                "status": {"type": "integer"},
                "details": {"type": "object"}
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
