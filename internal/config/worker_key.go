package config

type WorkerKeyStruct struct {
	ViolationAuditQueue string
}

var WorkerKey = &WorkerKeyStruct{
	ViolationAuditQueue: "violation_audit_queue",
}
