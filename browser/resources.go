package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceNames maps config names, singular or plural, to CDP resource
// types. Other names are compared with the CDP type itself.
var resourceNames = map[string]proto.NetworkResourceType{
	"image":       proto.NetworkResourceTypeImage,
	"images":      proto.NetworkResourceTypeImage,
	"font":        proto.NetworkResourceTypeFont,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheet":  proto.NetworkResourceTypeStylesheet,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
	"css":         proto.NetworkResourceTypeStylesheet,
	"script":      proto.NetworkResourceTypeScript,
	"scripts":     proto.NetworkResourceTypeScript,
}

// blockSet is the set of lowercased CDP resource types a tab refuses.
type blockSet map[string]bool

// newBlockSet resolves config names. The document itself is never blocked,
// or navigation would fail.
func newBlockSet(names []string) blockSet {
	set := blockSet{}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if t, ok := resourceNames[n]; ok {
			n = strings.ToLower(string(t))
		}
		if n != "" && n != strings.ToLower(string(proto.NetworkResourceTypeDocument)) {
			set[n] = true
		}
	}
	return set
}

func (s blockSet) blocks(t proto.NetworkResourceType) bool {
	return s[strings.ToLower(string(t))]
}

// blockResources fails the page's requests for blocked types. The returned
// router must be stopped when the tab closes; nil when nothing is blocked.
func blockResources(page *rod.Page, names []string) *rod.HijackRouter {
	set := newBlockSet(names)
	if len(set) == 0 {
		return nil
	}
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if set.blocks(h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}
