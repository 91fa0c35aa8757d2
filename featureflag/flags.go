package featureflag

type Flag string

const (
	// Verifies the proxy stores free list after every frame.
	FlagCheckFreeList Flag = "CHECK_FREE_LIST"

	// Skips applying captured frames to the local replica.
	FlagDisableReplicaVerification Flag = "DISABLE_REPLICA_VERIFICATION"

	// Skips publishing frames to websocket subscribers.
	FlagDisableStreaming Flag = "DISABLE_STREAMING"
)
