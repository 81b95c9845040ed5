package util

import "errors"

var (
	ErrInvalidChunkConfig = errors.New("invalid chunk config: overlap must be smaller than max chars")
	ErrLengthMismatch     = errors.New("ids, documents, metadatas and embeddings length mismatch")
	ErrEmptyEmbedding     = errors.New("embedding provider returned no vectors")
	ErrNotConnected       = errors.New("rag pipeline is not connected")
	ErrDownload           = errors.New("download failed")
)
