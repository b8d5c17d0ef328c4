// Package metrics declares the Prometheus counters exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Embeds counts embed resolutions by outcome: resolved, empty or error.
var Embeds = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "embed_resolver_embeds_total",
	Help: "Embed pages processed, by outcome",
}, []string{"outcome"})

// Manifests counts fetched playlists by kind: master, media, audio_only or opaque.
var Manifests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "embed_resolver_manifests_total",
	Help: "Playlists resolved, by kind",
}, []string{"kind"})

// Probes counts validator probes by result: playable, dead or cached.
var Probes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "embed_resolver_probes_total",
	Help: "Link validator probes, by result",
}, []string{"result"})

// Candidates counts extracted media candidates by the pattern family that found them.
var Candidates = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "embed_resolver_candidates_total",
	Help: "Media candidates found in embed pages, by source",
}, []string{"source"})
