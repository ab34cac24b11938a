package audit

import "fmt"

// maxPayloadLogSize caps how much of a request/response body is kept in
// an audit Record. Bodies larger than this are truncated with a suffix
// describing what was cut.
const maxPayloadLogSize = 8192

// TruncateBody renders data for storage in a Record's RequestBody or
// ResponseBody field. totalSize is the full body length if known (e.g.
// from Content-Length); pass -1 when the body was read from a stream of
// unknown total length, in which case the suffix omits the byte count.
func TruncateBody(data []byte, totalSize int64) string {
	if int64(len(data)) <= maxPayloadLogSize && (totalSize < 0 || totalSize <= maxPayloadLogSize) {
		return string(data)
	}
	kept := data
	if len(kept) > maxPayloadLogSize {
		kept = kept[:maxPayloadLogSize]
	}
	if totalSize >= 0 {
		return fmt.Sprintf("%s ... [truncated, %d bytes total]", kept, totalSize)
	}
	return fmt.Sprintf("%s ... [truncated]", kept)
}
