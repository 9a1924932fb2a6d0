package recorder

import (
	"context"

	"github.com/hazyhaar/locator/audit"
	"github.com/hazyhaar/locator/codegen"
	"github.com/hazyhaar/locator/dom"
	"github.com/hazyhaar/locator/kit"
	"github.com/hazyhaar/locator/selector"
)

// Requests shared by the MCP and HTTP transports.

type idRequest struct {
	ID string `json:"id"`
}

type listRequest struct {
	Limit int    `json:"limit,omitempty"`
	URL   string `json:"url,omitempty"`
}

type applyRequest struct {
	ID string `json:"id"`
	ApplyRequest
}

type suggestRequest struct {
	ID         string               `json:"id"`
	Candidates []selector.Candidate `json:"candidates"`
	HTML       string               `json:"html,omitempty"`
	URL        string               `json:"url,omitempty"`
}

type codeRequest struct {
	ID        string            `json:"id"`
	Framework codegen.Framework `json:"framework,omitempty"`
}

type codeResponse struct {
	ID        string            `json:"id"`
	Framework codegen.Framework `json:"framework"`
	Code      string            `json:"code"`
}

type deleteResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type bucketsResponse struct {
	ID      string           `json:"id"`
	Buckets selector.Buckets `json:"buckets"`
}

// endpoints holds one logged and audited Endpoint per operation. Reading
// the audit trail is logged only.
type endpoints struct {
	resolve kit.Endpoint
	record  kit.Endpoint
	get     kit.Endpoint
	list    kit.Endpoint
	delete  kit.Endpoint
	buckets kit.Endpoint
	apply   kit.Endpoint
	suggest kit.Endpoint
	code    kit.Endpoint
	trail   kit.Endpoint
}

func (r *Recorder) endpoints() *endpoints {
	wrap := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(kit.Logging(r.logger, name), audit.Middleware(r.audit, name))(ep)
	}
	return &endpoints{
		resolve: wrap("resolve", func(ctx context.Context, req any) (any, error) {
			return r.Resolve(ctx, *req.(*Page))
		}),
		record: wrap("record", func(ctx context.Context, req any) (any, error) {
			return r.RecordPage(ctx, *req.(*RecordPageRequest))
		}),
		get: wrap("get", func(ctx context.Context, req any) (any, error) {
			return r.Get(ctx, req.(*idRequest).ID)
		}),
		list: wrap("list", func(ctx context.Context, req any) (any, error) {
			lr := req.(*listRequest)
			return r.List(ctx, lr.Limit, lr.URL)
		}),
		delete: wrap("delete", func(ctx context.Context, req any) (any, error) {
			id := req.(*idRequest).ID
			if err := r.Delete(ctx, id); err != nil {
				return nil, err
			}
			return deleteResponse{ID: id, Status: "deleted"}, nil
		}),
		buckets: wrap("buckets", func(ctx context.Context, req any) (any, error) {
			id := req.(*idRequest).ID
			b, err := r.Buckets(ctx, id)
			if err != nil {
				return nil, err
			}
			return bucketsResponse{ID: id, Buckets: b}, nil
		}),
		apply: wrap("apply", func(ctx context.Context, req any) (any, error) {
			ar := req.(*applyRequest)
			return r.Apply(ctx, ar.ID, ar.ApplyRequest)
		}),
		suggest: wrap("suggest", func(ctx context.Context, req any) (any, error) {
			sr := req.(*suggestRequest)
			var doc *dom.Document
			if sr.HTML != "" || sr.URL != "" {
				d, err := r.Document(ctx, sr.HTML, sr.URL)
				if err != nil {
					return nil, err
				}
				doc = d
			}
			return r.SuggestAI(ctx, sr.ID, sr.Candidates, doc)
		}),
		code: wrap("code", func(ctx context.Context, req any) (any, error) {
			cr := req.(*codeRequest)
			fw := cr.Framework
			if fw == "" {
				fw = codegen.Playwright
			}
			stmt, err := r.Code(ctx, cr.ID, fw)
			if err != nil {
				return nil, err
			}
			return codeResponse{ID: cr.ID, Framework: fw, Code: stmt}, nil
		}),
		trail: kit.Logging(r.logger, "audit")(func(ctx context.Context, req any) (any, error) {
			return r.AuditTrail(ctx, *req.(*audit.Filter))
		}),
	}
}
