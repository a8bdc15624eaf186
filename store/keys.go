package store

// Persisted state layout. Every key lives under KeyPrefix; all values are
// JSON-encoded strings except the plain scalars noted below.
const (
	// KeyTodayContent holds the current "today" ContentItem.
	KeyTodayContent = "today_content"
	// KeyPreviousContent holds the archived previous-day ContentItem.
	KeyPreviousContent = "previous_content"
	// KeyLastRefresh holds the RFC3339 timestamp of the last cache write.
	KeyLastRefresh = "last_refresh"
	// KeyContentMetadata holds the sidecar Metadata for today's content.
	KeyContentMetadata = "content_metadata"
	// KeyPendingInteractions holds the queued offline interactions.
	KeyPendingInteractions = "pending_interactions"
	// KeyContentHistory holds the bounded history list, newest first.
	KeyContentHistory = "content_history"
	// KeyTimezoneSnapshot holds the last-seen timezone snapshot.
	KeyTimezoneSnapshot = "timezone_metadata"
	// KeyLastTimezoneCheck holds the RFC3339 timestamp of the last detector run.
	KeyLastTimezoneCheck = "last_timezone_check"
	// KeySyncErrors holds the bounded sync error ring.
	KeySyncErrors = "sync_errors"
	// KeyLastSync holds the last fully successful sync record.
	KeyLastSync = "last_sync"
	// KeySyncRetryCount holds the persisted sync retry counter (plain int).
	KeySyncRetryCount = "sync_retry_count"
	// KeyBackgroundSync holds whether background sync is enabled (plain bool).
	KeyBackgroundSync = "background_sync"
	// KeyLastCleanup holds the RFC3339 timestamp of the last maintenance pass.
	KeyLastCleanup = "last_cleanup"
	// KeyContentExpiration holds the history expiration record.
	KeyContentExpiration = "content_expiration"
	// KeyManualInvalidation holds the most recent manual invalidation record.
	KeyManualInvalidation = "manual_invalidation"
	// KeyLastDisconnect holds the diagnostics snapshot taken on connectivity loss.
	KeyLastDisconnect = "last_disconnect"
)
