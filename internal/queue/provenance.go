package queue

import "github.com/archivescribe/ytingest/internal/domain"

// InferSourceType implements spec §4.8's provenance inference: zero or one
// distinct non-empty channel_id across rows yields bulk_channel; two or
// more yields bulk_multi_channel. Callers may override the inferred value
// (spec: "caller-overrideable") by setting Config.SourceTypeOverride, which
// the Processor uses in place of this function's result.
func InferSourceType(rows []Row) domain.SourceType {
	distinct := map[string]struct{}{}
	for _, r := range rows {
		if r.ChannelID != "" {
			distinct[r.ChannelID] = struct{}{}
		}
	}
	if len(distinct) >= 2 {
		return domain.SourceBulkMultiChannel
	}
	return domain.SourceBulkChannel
}
