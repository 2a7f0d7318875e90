package audit

// EventType is the closed vocabulary of audit-worthy operations across
// Loom's core, grouped by domain. Every privileged mutation in the system
// emits one of these. Values serialize to the dotted "domain.snake_case"
// wire form listed in eventTypeNames (e.g. EventOrgCreated ->
// "org.created", EventKillSwitchActivated -> "flag.kill_switch_activated").
type EventType int

const (
	eventTypeUnknown EventType = iota

	// --- auth ---
	EventAuthLoginSucceeded
	EventAuthLoginFailed
	EventAuthLogout
	EventAuthSessionRevoked
	EventAuthAPIKeyCreated
	EventAuthAPIKeyRevoked
	EventAuthImpersonationStarted
	EventAuthImpersonationEnded

	// --- org ---
	EventOrgCreated
	EventOrgUpdated
	EventOrgDeleted
	EventOrgRestored
	EventOrgVisibilityChanged
	EventOrgMemberAdded
	EventOrgMemberRemoved
	EventOrgMemberRoleChanged
	EventOrgOwnershipTransferred
	EventOrgInvitationCreated
	EventOrgInvitationAccepted
	EventOrgInvitationRevoked
	EventOrgInvitationExpired
	EventOrgJoinRequestCreated
	EventOrgJoinRequestApproved
	EventOrgJoinRequestDenied

	// --- team ---
	EventTeamCreated
	EventTeamUpdated
	EventTeamDeleted
	EventTeamMemberAdded
	EventTeamMemberRemoved
	EventTeamMemberRoleChanged

	// --- thread ---
	EventThreadCreated
	EventThreadUpdated
	EventThreadDeleted
	EventThreadVisibilityChanged
	EventThreadSharedWithSupport
	EventThreadSyncConflict
	EventThreadSynced

	// --- weaver ---
	EventWeaverCreateRequested
	EventWeaverCreated
	EventWeaverCreateFailed
	EventWeaverDeleted
	EventWeaverAttached
	EventWeaverLogsStreamed
	EventWeaverCleanedUp
	EventWeaverConcurrencyLimitHit
	EventWeaverSandboxEscape

	// --- flags ---
	EventFlagCreated
	EventFlagUpdated
	EventFlagArchived
	EventFlagConfigUpdated
	EventFlagStrategyUpdated
	EventFlagEvaluated
	EventKillSwitchActivated
	EventKillSwitchDeactivated
	EventSDKKeyCreated
	EventSDKKeyRevoked

	// --- analytics ---
	EventAnalyticsPersonIdentified
	EventAnalyticsPersonAliased
	EventAnalyticsPersonsMerged

	// --- webhooks ---
	EventWebhookCreated
	EventWebhookUpdated
	EventWebhookDeleted
	EventWebhookDeliveryFailed
	EventWebhookDeliverySucceeded

	// --- scim ---
	EventSCIMUserProvisioned
	EventSCIMUserDeprovisioned
	EventSCIMGroupSynced

	// --- secrets ---
	EventSecretRetrieved
	EventSecretRotated

	// --- admin / platform ---
	EventPlatformConfigChanged
	EventAuditRetentionSwept
	EventSystemAdminGranted
	EventSystemAdminRevoked
)

var eventTypeNames = map[EventType]string{
	EventAuthLoginSucceeded:        "auth.login_succeeded",
	EventAuthLoginFailed:           "auth.login_failed",
	EventAuthLogout:                "auth.logout",
	EventAuthSessionRevoked:        "auth.session_revoked",
	EventAuthAPIKeyCreated:         "auth.api_key_created",
	EventAuthAPIKeyRevoked:         "auth.api_key_revoked",
	EventAuthImpersonationStarted:  "auth.impersonation_started",
	EventAuthImpersonationEnded:    "auth.impersonation_ended",

	EventOrgCreated:              "org.created",
	EventOrgUpdated:              "org.updated",
	EventOrgDeleted:              "org.deleted",
	EventOrgRestored:             "org.restored",
	EventOrgVisibilityChanged:    "org.visibility_changed",
	EventOrgMemberAdded:          "org.member_added",
	EventOrgMemberRemoved:        "org.member_removed",
	EventOrgMemberRoleChanged:    "org.member_role_changed",
	EventOrgOwnershipTransferred: "org.ownership_transferred",
	EventOrgInvitationCreated:    "org.invitation_created",
	EventOrgInvitationAccepted:   "org.invitation_accepted",
	EventOrgInvitationRevoked:    "org.invitation_revoked",
	EventOrgInvitationExpired:    "org.invitation_expired",
	EventOrgJoinRequestCreated:   "org.join_request_created",
	EventOrgJoinRequestApproved:  "org.join_request_approved",
	EventOrgJoinRequestDenied:    "org.join_request_denied",

	EventTeamCreated:           "team.created",
	EventTeamUpdated:           "team.updated",
	EventTeamDeleted:           "team.deleted",
	EventTeamMemberAdded:       "team.member_added",
	EventTeamMemberRemoved:     "team.member_removed",
	EventTeamMemberRoleChanged: "team.member_role_changed",

	EventThreadCreated:            "thread.created",
	EventThreadUpdated:            "thread.updated",
	EventThreadDeleted:            "thread.deleted",
	EventThreadVisibilityChanged:  "thread.visibility_changed",
	EventThreadSharedWithSupport:  "thread.shared_with_support",
	EventThreadSyncConflict:       "thread.sync_conflict",
	EventThreadSynced:             "thread.synced",

	EventWeaverCreateRequested:     "weaver.create_requested",
	EventWeaverCreated:             "weaver.created",
	EventWeaverCreateFailed:        "weaver.create_failed",
	EventWeaverDeleted:             "weaver.deleted",
	EventWeaverAttached:            "weaver.attached",
	EventWeaverLogsStreamed:        "weaver.logs_streamed",
	EventWeaverCleanedUp:           "weaver.cleaned_up",
	EventWeaverConcurrencyLimitHit: "weaver.concurrency_limit_hit",
	EventWeaverSandboxEscape:       "weaver.sandbox_escape",

	EventFlagCreated:         "flag.created",
	EventFlagUpdated:         "flag.updated",
	EventFlagArchived:        "flag.archived",
	EventFlagConfigUpdated:   "flag.config_updated",
	EventFlagStrategyUpdated: "flag.strategy_updated",
	EventFlagEvaluated:       "flag.evaluated",
	EventKillSwitchActivated: "flag.kill_switch_activated",
	EventKillSwitchDeactivated: "flag.kill_switch_deactivated",
	EventSDKKeyCreated:       "flag.sdk_key_created",
	EventSDKKeyRevoked:       "flag.sdk_key_revoked",

	EventAnalyticsPersonIdentified: "analytics.person_identified",
	EventAnalyticsPersonAliased:    "analytics.person_aliased",
	EventAnalyticsPersonsMerged:    "analytics.persons_merged",

	EventWebhookCreated:           "webhook.created",
	EventWebhookUpdated:           "webhook.updated",
	EventWebhookDeleted:           "webhook.deleted",
	EventWebhookDeliveryFailed:    "webhook.delivery_failed",
	EventWebhookDeliverySucceeded: "webhook.delivery_succeeded",

	EventSCIMUserProvisioned:   "scim.user_provisioned",
	EventSCIMUserDeprovisioned: "scim.user_deprovisioned",
	EventSCIMGroupSynced:       "scim.group_synced",

	EventSecretRetrieved: "secret.retrieved",
	EventSecretRotated:   "secret.rotated",

	EventPlatformConfigChanged: "platform.config_changed",
	EventAuditRetentionSwept:   "platform.audit_retention_swept",
	EventSystemAdminGranted:    "platform.system_admin_granted",
	EventSystemAdminRevoked:    "platform.system_admin_revoked",
}

var eventTypeByName = func() map[string]EventType {
	m := make(map[string]EventType, len(eventTypeNames))
	for t, n := range eventTypeNames {
		m[n] = t
	}
	return m
}()

// String renders the stable snake_case wire form of the event type.
func (t EventType) String() string {
	if n, ok := eventTypeNames[t]; ok {
		return n
	}
	return "unknown"
}

// ParseEventType parses the wire form back into an EventType. Bijective
// with String for every declared constant (see TestEventTypeStringBijective).
func ParseEventType(s string) (EventType, bool) {
	t, ok := eventTypeByName[s]
	return t, ok
}

func (t EventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *EventType) UnmarshalText(text []byte) error {
	v, ok := ParseEventType(string(text))
	if !ok {
		*t = eventTypeUnknown
		return nil
	}
	*t = v
	return nil
}

// destructiveOrAdmin is the set of event types that represent a destructive
// or administrative action and therefore default to Notice severity.
var destructiveOrAdmin = map[EventType]bool{
	EventOrgDeleted: true, EventOrgRestored: true, EventOrgOwnershipTransferred: true,
	EventTeamDeleted: true, EventThreadDeleted: true, EventWeaverDeleted: true,
	EventFlagArchived: true, EventKillSwitchActivated: true, EventKillSwitchDeactivated: true,
	EventWebhookDeleted: true, EventSCIMUserDeprovisioned: true,
	EventPlatformConfigChanged: true, EventSystemAdminGranted: true, EventSystemAdminRevoked: true,
	EventAuthImpersonationStarted: true, EventAuthImpersonationEnded: true,
	EventSecretRotated: true,
}

// securityRelevantFailures default to Warning severity.
var securityRelevantFailures = map[EventType]bool{
	EventAuthLoginFailed: true, EventOrgJoinRequestDenied: true,
	EventWeaverConcurrencyLimitHit: true, EventThreadSyncConflict: true,
}

// operationFailures default to Error severity.
var operationFailures = map[EventType]bool{
	EventWeaverCreateFailed: true, EventWebhookDeliveryFailed: true,
}

// breaches default to Critical severity.
var breaches = map[EventType]bool{
	EventWeaverSandboxEscape: true,
}

// DefaultSeverity implements the rule that the builder falls back
// to when no explicit severity is supplied: Info for normal operations,
// Warning for security-relevant failures, Notice for destructive/admin
// operations, Error for operation failures, Critical for breaches.
func (t EventType) DefaultSeverity() Severity {
	switch {
	case breaches[t]:
		return SeverityCritical
	case operationFailures[t]:
		return SeverityError
	case destructiveOrAdmin[t]:
		return SeverityNotice
	case securityRelevantFailures[t]:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
