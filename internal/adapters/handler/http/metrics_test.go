package http

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_PanelPresses(t *testing.T) {
	engine := newFakeEngine()
	ts, _ := newTestServer(t, engine, Options{EnableMetrics: true})
	client := newClient(t, false)

	unconfirmed := panelPresses.WithLabelValues("gitea", "remove", "unconfirmed")
	ok := panelPresses.WithLabelValues("gitea", "remove", "ok")
	pageViews := webRequests.WithLabelValues(http.MethodGet, "/panels/{id}", "200")
	beforeUnconfirmed, beforeOK, beforeViews := testutil.ToFloat64(unconfirmed), testutil.ToFloat64(ok), testutil.ToFloat64(pageViews)

	for _, form := range []url.Values{nil, {"confirm": {"yes"}}} {
		resp, err := client.PostForm(ts.URL+"/panels/gitea/remove", form)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}
	for _, id := range []string{"gitea", "storecli"} {
		resp, err := client.Get(ts.URL + "/panels/" + id)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}

	if got := testutil.ToFloat64(unconfirmed) - beforeUnconfirmed; got != 1 {
		t.Errorf("unconfirmed presses = %v", got)
	}
	if got := testutil.ToFloat64(ok) - beforeOK; got != 1 {
		t.Errorf("ok presses = %v", got)
	}
	if got := testutil.ToFloat64(pageViews) - beforeViews; got != 2 {
		t.Errorf("panel page requests = %v", got)
	}

	resp, err := client.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	if body := readBody(t, resp); !strings.Contains(body, "omvstack_web_panel_presses_total") {
		t.Error("metrics endpoint missing panel presses")
	}
}
