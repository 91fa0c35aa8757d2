package replication

const (
	ErrTypeStreamMismatch   = "replication_stream_mismatch"
	ErrTypeSequenceGap      = "replication_sequence_gap"
	ErrTypeCorruptFrame     = "replication_corrupt_frame"
	ErrTypeChecksumMismatch = "replication_checksum_mismatch"
	ErrTypePublisherClosed  = "replication_publisher_closed"
)
