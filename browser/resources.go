package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceAliases maps DevTools resource types to config names.
var resourceAliases = map[proto.NetworkResourceType]string{
	proto.NetworkResourceTypeImage:      "images",
	proto.NetworkResourceTypeFont:       "fonts",
	proto.NetworkResourceTypeMedia:      "media",
	proto.NetworkResourceTypeStylesheet: "stylesheets",
}

// applyResourceBlocking fails requests for the configured resource types.
func applyResourceBlocking(page *rod.Page, types []string) error {
	blocked := make(map[string]bool, len(types))
	for _, t := range types {
		blocked[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		if shouldBlock(blocked, h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		return err
	}
	go router.Run()
	return nil
}

func shouldBlock(blocked map[string]bool, t proto.NetworkResourceType) bool {
	if alias, ok := resourceAliases[t]; ok && blocked[alias] {
		return true
	}
	return blocked[strings.ToLower(string(t))]
}
