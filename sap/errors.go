package sap

const (
	ErrTypeInvalidProxyType  = "invalid_proxy_type"
	ErrTypeRegionTaken       = "region_taken"
	ErrTypeFreeListCorrupted = "free_list_corrupted"
	ErrTypeCorruptEncoding   = "corrupt_encoding"
	ErrTypeInvalidDiff       = "invalid_diff"
)
