package handlers

import (
	"encoding/json"
	"net/http"
)

type object = map[string]interface{}

func queryParam(name, description, typ string, required bool) object {
	return object{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    required,
		"schema":      object{"type": typ},
	}
}

func nullableNumber() object {
	return object{"type": "number", "nullable": true}
}

func jsonResponse(description string, schema object) object {
	return object{
		"description": description,
		"content": object{
			"application/json": object{"schema": schema},
		},
	}
}

func paginatedSchema(item string) object {
	return object{
		"type": "object",
		"properties": object{
			"data":        object{"type": "array", "items": object{"$ref": "#/components/schemas/" + item}},
			"total":       object{"type": "integer"},
			"page":        object{"type": "integer"},
			"limit":       object{"type": "integer"},
			"total_pages": object{"type": "integer"},
		},
	}
}

var errorResponses = object{
	"400": jsonResponse("Invalid parameter or schema error", object{"$ref": "#/components/schemas/Error"}),
	"404": jsonResponse("Key not found in reference data", object{"$ref": "#/components/schemas/Error"}),
	"500": jsonResponse("Internal error", object{"$ref": "#/components/schemas/Error"}),
}

func withErrors(ok object) object {
	out := object{"200": ok}
	for code, resp := range errorResponses {
		out[code] = resp
	}
	return out
}

var (
	keyParams = []object{
		queryParam("model", "Filter by model", "string", false),
		queryParam("scenario", "Filter by scenario", "string", false),
		queryParam("region", "Filter by region", "string", false),
		queryParam("variable", "Filter by variable", "string", false),
		queryParam("year", "Filter by year", "integer", false),
	}
	pageParams = []object{
		{
			"name": "page", "in": "query", "description": "Page number (default: 1)",
			"schema": object{"type": "integer", "default": 1},
		},
		{
			"name": "limit", "in": "query", "description": "Records per page (default: 100, max: 1000)",
			"schema": object{"type": "integer", "default": defaultLimit},
		},
	}
	pairParams = []object{
		queryParam("numerator", "Numerator variable (default: first configured pair)", "string", false),
		queryParam("denominator", "Denominator variable (default: first configured pair)", "string", false),
	}
)

func params(groups ...[]object) []object {
	var out []object
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func observationProperties() object {
	return object{
		"model":    object{"type": "string"},
		"scenario": object{"type": "string"},
		"region":   object{"type": "string"},
		"variable": object{"type": "string"},
		"unit":     object{"type": "string"},
		"year":     object{"type": "integer"},
		"value":    nullableNumber(),
	}
}

func enrichedProperties() object {
	p := observationProperties()
	p["baseline_scenario"] = object{"type": "string"}
	p["baseline_value"] = nullableNumber()
	p["delta"] = nullableNumber()
	p["percentage_change"] = nullableNumber()
	return p
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the IAM comparison API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	missingProps := enrichedProperties()
	missingProps["reason"] = object{"type": "string", "enum": []string{"NoBaselineData", "DivisionByZero", "Unknown"}}

	spec := object{
		"openapi": "3.0.0",
		"info": object{
			"title":       "IAM Scenario Comparison API",
			"description": "Baseline deltas, variable shares and uncertainty bands for integrated assessment model scenarios",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": object{
			"/api/observations": object{
				"get": object{
					"summary":     "Get observations",
					"description": "Retrieve loaded scenario rows with filtering and pagination",
					"parameters":  params(keyParams, pageParams),
					"responses":   withErrors(jsonResponse("Successful response", paginatedSchema("Observation"))),
				},
			},
			"/api/deltas": object{
				"get": object{
					"summary":     "Get baseline deltas",
					"description": "Rows joined to the baseline scenario with delta and percentage change",
					"parameters": params(
						[]object{queryParam("baseline", "Baseline scenario (default: configured)", "string", false)},
						keyParams, pageParams,
					),
					"responses": withErrors(jsonResponse("Successful response", paginatedSchema("EnrichedObservation"))),
				},
			},
			"/api/deltas/missing": object{
				"get": object{
					"summary":     "Get rows without a percentage change",
					"description": "Missing-data diagnostic with per-reason counts",
					"parameters": params(
						[]object{
							queryParam("baseline", "Baseline scenario (default: configured)", "string", false),
							queryParam("reason", "NoBaselineData, DivisionByZero or Unknown", "string", false),
						},
						keyParams, pageParams,
					),
					"responses": withErrors(jsonResponse("Successful response", paginatedSchema("MissingRow"))),
				},
			},
			"/api/shares": object{
				"get": object{
					"summary":     "Get variable shares",
					"description": "Numerator as a percentage of denominator per model, scenario, region and year",
					"parameters": params(pairParams, []object{
						queryParam("model", "Filter by model", "string", false),
						queryParam("scenario", "Filter by scenario", "string", false),
						queryParam("region", "Filter by region", "string", false),
						queryParam("year", "Filter by year", "integer", false),
					}, pageParams),
					"responses": withErrors(jsonResponse("Successful response", paginatedSchema("ShareRecord"))),
				},
			},
			"/api/shares/summary": object{
				"get": object{
					"summary":     "Summarize shares across models",
					"description": "Per-year mean, min and max share for one scenario and region",
					"parameters": params(pairParams, []object{
						queryParam("scenario", "Scenario", "string", true),
						queryParam("region", "Region (default: World)", "string", false),
						queryParam("years", "Comma separated years (default: all stored)", "string", false),
					}),
					"responses": withErrors(jsonResponse("Successful response", object{"type": "object"})),
				},
			},
			"/api/uncertainty": object{
				"get": object{
					"summary":     "Get uncertainty bands",
					"description": "Percentile series per scenario in display units",
					"parameters": []object{
						queryParam("variable", "Variable", "string", true),
						queryParam("scenario", "Scenarios, repeated or comma separated", "string", true),
						queryParam("percentile", "Percentile labels (default: 5th,95th)", "string", false),
					},
					"responses": withErrors(jsonResponse("Successful response", object{"type": "object"})),
				},
			},
			"/api/uncertainty/whisker": object{
				"get": object{
					"summary":     "Get median and 5-95 band for one year",
					"description": "Single point lookup in display units",
					"parameters": []object{
						queryParam("variable", "Variable", "string", true),
						queryParam("scenario", "Scenario", "string", true),
						queryParam("year", "Year", "integer", true),
					},
					"responses": withErrors(jsonResponse("Successful response", object{
						"type": "object",
						"properties": object{
							"variable": object{"type": "string"},
							"scenario": object{"type": "string"},
							"year":     object{"type": "integer"},
							"median":   object{"type": "number"},
							"low":      object{"type": "number"},
							"high":     object{"type": "number"},
						},
					})),
				},
			},
			"/api/display": object{
				"get": object{
					"summary":   "Display configuration",
					"responses": object{"200": jsonResponse("Labels, colours, markers, groups and unit scales", object{"type": "object"})},
				},
			},
			"/health": object{
				"get": object{
					"summary":     "Health check",
					"description": "Check if the API and its database are reachable",
					"responses": object{
						"200": jsonResponse("API is healthy", object{
							"type":       "object",
							"properties": object{"status": object{"type": "string"}},
						}),
						"503": jsonResponse("Database unreachable", object{"type": "object"}),
					},
				},
			},
			"/metrics": object{
				"get": object{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": object{
						"200": object{
							"description": "Prometheus metrics in text format",
							"content": object{
								"text/plain": object{"schema": object{"type": "string"}},
							},
						},
					},
				},
			},
		},
		"components": object{
			"schemas": object{
				"Observation":         object{"type": "object", "properties": observationProperties()},
				"EnrichedObservation": object{"type": "object", "properties": enrichedProperties()},
				"MissingRow":          object{"type": "object", "properties": missingProps},
				"ShareRecord": object{
					"type": "object",
					"properties": object{
						"model":                object{"type": "string"},
						"scenario":             object{"type": "string"},
						"region":               object{"type": "string"},
						"year":                 object{"type": "integer"},
						"numerator_variable":   object{"type": "string"},
						"denominator_variable": object{"type": "string"},
						"numerator_value":      nullableNumber(),
						"denominator_value":    nullableNumber(),
						"share":                nullableNumber(),
					},
				},
				"Error": object{
					"type": "object",
					"properties": object{
						"error":   object{"type": "string"},
						"message": object{"type": "string"},
						"code":    object{"type": "integer"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
