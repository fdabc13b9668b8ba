package messaging

type KafkaEvent = string

const (
	SyncStartedEvent   = "sync_started"
	SyncFinishedEvent  = "sync_finished"
	SyncCancelledEvent = "sync_cancelled"
	SyncFailedEvent    = "sync_failed"
	FeedSubmittedEvent = "feed_submitted"
	FeedProcessedEvent = "feed_processed"
)
