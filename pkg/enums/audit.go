package enums

// AuditActorType identifies who performed an audited action.
type AuditActorType string

const (
	AuditActorUser   AuditActorType = "USER"
	AuditActorSystem AuditActorType = "SYSTEM"
)

// AuditAction names a mutating operation recorded in the audit trail.
type AuditAction string

const (
	AuditSubscriptionCreate AuditAction = "SUBSCRIPTION_CREATE"
	AuditSubscriptionUpdate AuditAction = "SUBSCRIPTION_UPDATE"
	AuditSubscriptionPause  AuditAction = "SUBSCRIPTION_PAUSE"
	AuditSubscriptionResume AuditAction = "SUBSCRIPTION_RESUME"
	AuditSubscriptionCancel AuditAction = "SUBSCRIPTION_CANCEL"
	AuditSubscriptionDelete AuditAction = "SUBSCRIPTION_DELETE"
	AuditPlanCreate         AuditAction = "PLAN_CREATE"
	AuditPlanUpdate         AuditAction = "PLAN_UPDATE"
	AuditPlanDelete         AuditAction = "PLAN_DELETE"
	AuditCustomerCreate     AuditAction = "CUSTOMER_CREATE"
	AuditCustomerUpdate     AuditAction = "CUSTOMER_UPDATE"
	AuditCustomerDelete     AuditAction = "CUSTOMER_DELETE"
	AuditWebhookCreate      AuditAction = "WEBHOOK_CREATE"
	AuditWebhookUpdate      AuditAction = "WEBHOOK_UPDATE"
	AuditWebhookDelete      AuditAction = "WEBHOOK_DELETE"
	AuditAPIClientCreate    AuditAction = "API_CLIENT_CREATE"
	AuditAPIClientUpdate    AuditAction = "API_CLIENT_UPDATE"
	AuditAPIClientDelete    AuditAction = "API_CLIENT_DELETE"
)
