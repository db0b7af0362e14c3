package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Service
	FieldService  = "service"
	FieldInstance = "instance_id"

	// Pipeline
	FieldConnID    = "conn_id"
	FieldProjectID = "project_id"
	FieldTaskID    = "task_id"
	FieldMessage   = "message_kind"
	FieldTopic     = "topic"
	FieldObjectKey = "object_key"
)
