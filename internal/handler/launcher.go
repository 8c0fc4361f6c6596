package handler

import (
	"bytes"
	"crypto/rand"
	"embed"
	"encoding/base64"
	"html/template"
	"net/http"
	"net/url"

	"github.com/sajpe/visitgate/internal/model"
	"github.com/sajpe/visitgate/internal/redirect"
)

//go:embed templates/launcher.html
var templateFS embed.FS

var launcherTemplate = template.Must(template.ParseFS(templateFS, "templates/launcher.html"))

type trigger struct {
	Label string
	Href  string
}

type launcherData struct {
	Title        string
	Nonce        string
	Manual       bool
	Triggers     []trigger
	Device       model.DeviceProfile
	Primary      template.URL
	PrimaryJS    string
	Fallback     string
	DelayMS      int64
	MaxElapsedMS int64
}

// manualTriggers mirrors the referral override parameters.
var manualTriggers = []struct {
	label, typ, code string
}{
	{"SajPe", "s", "105"},
	{"SajPe Business", "b", "202"},
	{"SajPe Community", "c", "301"},
}

func newLauncherData(d redirect.Decision, device model.DeviceProfile, race redirect.VisibilityRace, nonce string) launcherData {
	data := launcherData{
		Title:  "SajPe",
		Nonce:  nonce,
		Manual: !d.Auto,
		Device: device,
	}
	if data.Manual {
		for _, t := range manualTriggers {
			q := url.Values{"type": {t.typ}, "code": {t.code}}
			data.Triggers = append(data.Triggers, trigger{Label: t.label, Href: "/?" + q.Encode()})
		}
		return data
	}

	// Primary is built from a configured scheme and an escaped code.
	data.Primary = template.URL(d.Primary)
	data.PrimaryJS = d.Primary
	data.Fallback = d.Fallback
	data.DelayMS = race.Delay.Milliseconds()
	data.MaxElapsedMS = race.MaxElapsed.Milliseconds()
	return data
}

func newNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.StdEncoding.EncodeToString(b)
}

func launcherCSP(nonce string) string {
	return "default-src 'none'; script-src 'nonce-" + nonce + "'; style-src 'nonce-" + nonce + "'; " +
		"base-uri 'none'; form-action 'none'; frame-ancestors 'none'"
}

func renderLauncher(w http.ResponseWriter, data launcherData) error {
	var buf bytes.Buffer
	if err := launcherTemplate.Execute(&buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", launcherCSP(data.Nonce))
	w.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(w)
	return err
}
