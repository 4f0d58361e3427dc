package provider_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elabx-org/partscout/internal/config"
	"github.com/elabx-org/partscout/internal/credential"
	"github.com/elabx-org/partscout/internal/provider"
)

type staticSource struct{ set credential.Set }

func (s staticSource) Loader(credential.Key) credential.Loader {
	return func(context.Context) (credential.Set, error) { return s.set, nil }
}

func TestDescriptorFor(t *testing.T) {
	off := false
	pc := config.ProviderConfig{
		Name: "acme", Kind: "catalog", Priority: 3, Enabled: &off,
		URL:          "http://acme",
		Auth:         config.AuthConfig{Type: config.AuthAPIKey},
		Capabilities: []string{"search", "product_details"},
	}
	d := provider.DescriptorFor(pc)
	if d.Name != "acme" || d.Kind != "catalog" || d.Priority != 3 {
		t.Errorf("descriptor = %+v", d)
	}
	if d.Enabled {
		t.Error("Enabled = true, want false")
	}
	if d.IsConfigured() {
		t.Error("IsConfigured() = true without api key")
	}
	if d.Auth != provider.AuthAPIKey {
		t.Errorf("Auth = %v, want api_key", d.Auth)
	}
	if !d.Capabilities.Search || !d.Capabilities.ProductDetails || d.Capabilities.Order {
		t.Errorf("Capabilities = %+v", d.Capabilities)
	}
}

func TestFactoryCreateUnknownProvider(t *testing.T) {
	f := provider.NewFactory(nil, nil, nil, nil)
	_, err := f.Create(context.Background(), provider.Descriptor{Name: "ghost"}, "u")
	if !errors.Is(err, provider.ErrUnknownProvider) {
		t.Errorf("Create() error = %v, want ErrUnknownProvider", err)
	}
}

func TestFactoryCreateTokenClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-d" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	pc := config.ProviderConfig{
		Name: "Distributor", Kind: "distributor", URL: srv.URL, SearchPath: "/search",
		Auth:         config.AuthConfig{Type: config.AuthOAuth, ClientID: "cid", TokenURL: srv.URL + "/token"},
		Capabilities: []string{"search"},
	}
	src := staticSource{set: credential.Set{Records: []credential.Record{{Provider: "distributor", AccessToken: "tok-d"}}}}
	f := provider.NewFactory([]config.ProviderConfig{pc}, credential.NewStore(), src, nil)

	c, err := f.Create(context.Background(), provider.DescriptorFor(pc), "alice")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if c.Name() != "Distributor" || !c.IsConfigured() {
		t.Errorf("client = %s configured=%v", c.Name(), c.IsConfigured())
	}
	if _, err := c.Search(context.Background(), provider.SearchRequest{Keyword: "x"}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
}

func TestFactoryTokenClientNeedsStore(t *testing.T) {
	pc := config.ProviderConfig{Name: "d", Kind: "distributor", Auth: config.AuthConfig{Type: config.AuthOAuth}}
	f := provider.NewFactory([]config.ProviderConfig{pc}, nil, nil, nil)
	if _, err := f.Create(context.Background(), provider.DescriptorFor(pc), "u"); err == nil {
		t.Error("Create() error = nil, want error without credential store")
	}
}
