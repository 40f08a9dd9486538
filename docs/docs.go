// Package docs registers the OpenAPI document served on /swagger.
package docs

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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Controller status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ControllerState"}},
                    "500": {"description": "Internal Server Error"}
                }
            }
        },
        "/temp": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["status"],
                "summary": "Aggregate temperature",
                "responses": {
                    "200": {"description": "42.000", "schema": {"type": "string"}},
                    "503": {"description": "no aggregate temperature yet"}
                }
            }
        },
        "/metrics": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["status"],
                "summary": "Prometheus exposition",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ws": {
            "get": {
                "tags": ["status"],
                "summary": "Snapshot stream",
                "parameters": [
                    {"type": "string", "description": "Go duration, e.g. 500ms", "name": "interval", "in": "query"},
                    {"type": "integer", "description": "Milliseconds", "name": "interval_ms", "in": "query"}
                ],
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        },
        "/api/v1/state": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Controller status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ControllerState"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/api/v1/events": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "List control events",
                "parameters": [
                    {"type": "string", "example": "2026-10-01", "name": "from", "in": "query"},
                    {"type": "string", "example": "2026-10-15", "name": "to", "in": "query"},
                    {
                        "enum": ["START", "STOP", "DUTY_CHANGE", "DEGRADED", "RECOVERED", "PEERS_CHANGED", "ACTUATOR_ERROR"],
                        "type": "string",
                        "name": "type",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {"description": "count, events"},
                    "400": {"description": "Bad Request"},
                    "401": {"description": "Unauthorized"},
                    "500": {"description": "Internal Server Error"}
                }
            }
        }
    },
    "definitions": {
        "models.ControllerState": {
            "type": "object",
            "properties": {
                "mode": {"type": "string"},
                "phase": {"type": "string"},
                "running": {"type": "boolean"},
                "degraded": {"type": "boolean"},
                "degraded_reason": {"type": "string"},
                "fan_duty_percent": {"type": "number"},
                "temperatures": {"type": "object", "additionalProperties": {"type": "number"}},
                "source_errors": {"type": "object", "additionalProperties": {"type": "string"}},
                "readings": {"type": "array", "items": {"$ref": "#/definitions/models.TemperatureReading"}},
                "aggregate_method": {"type": "string"},
                "remote_method": {"type": "string", "enum": ["http", "ssh"]},
                "aggregate_temp_celsius": {"type": "number"},
                "aggregate_temp_avg_celsius": {"type": "number"},
                "contributing_count": {"type": "integer"},
                "step_zone_index": {"type": "integer"},
                "actuator_error": {"type": "string"},
                "peers": {"type": "array", "items": {"type": "string"}},
                "cycle": {"type": "integer"},
                "updated_at": {"type": "string"}
            }
        },
        "models.TemperatureReading": {
            "type": "object",
            "properties": {
                "source_id": {"type": "string"},
                "value_celsius": {"type": "number"},
                "error": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "fancontrol",
	Description:      "Cluster fan controller status and control journal.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
