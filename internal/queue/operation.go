package queue

import (
	"net/http"
	"net/url"

	"github.com/existflow/irontrack/internal/model"
)

// NewOperation describes the server call that replays a local write to
// resource. id is ignored for creates and sync operations. A delete's
// payload is the local tombstone.
func NewOperation(typ model.OpType, resource, id string, payload []byte) model.QueuedOperation {
	op := model.QueuedOperation{
		Type:     typ,
		Resource: resource,
		Payload:  payload,
	}
	switch typ {
	case model.OpCreate:
		op.Method = http.MethodPost
		op.Endpoint = "/api/" + resource
	case model.OpUpdate:
		op.Method = http.MethodPut
		op.Endpoint = "/api/" + resource + "/" + url.PathEscape(id)
	case model.OpDelete:
		op.Method = http.MethodDelete
		op.Endpoint = "/api/" + resource + "/" + url.PathEscape(id)
	case model.OpSync:
		op.Method = http.MethodPost
		op.Endpoint = "/api/sync"
	}
	if id != "" {
		op.Metadata = map[string]string{"id": id}
	}
	return op
}
