package metrics

import (
	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/prometheus/client_golang/prometheus"
)

// CatalogCollector reads track and playlist totals from the catalog at scrape time.
type CatalogCollector struct {
	catalog *repositories.Catalog
	logger  *log.Logger

	tracksDesc    *prometheus.Desc
	playlistsDesc *prometheus.Desc
	upDesc        *prometheus.Desc
}

func NewCatalogCollector(catalog *repositories.Catalog, logger *log.Logger) *CatalogCollector {
	if logger == nil {
		logger = log.Default()
	}
	return &CatalogCollector{
		catalog: catalog,
		logger:  logger,

		tracksDesc: prometheus.NewDesc(
			namespace+"_catalog_tracks",
			"Number of tracks in the catalog by status",
			[]string{"status"},
			nil,
		),
		playlistsDesc: prometheus.NewDesc(
			namespace+"_catalog_playlists",
			"Number of active playlists",
			nil,
			nil,
		),
		upDesc: prometheus.NewDesc(
			namespace+"_catalog_up",
			"Whether the catalog could be read (1=yes, 0=no)",
			nil,
			nil,
		),
	}
}

func (c *CatalogCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tracksDesc
	ch <- c.playlistsDesc
	ch <- c.upDesc
}

func (c *CatalogCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.catalog.Tracks.Counts("")
	if err != nil {
		c.logger.Warn("failed to count tracks for metrics", "error", err)
		ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, 0)
		return
	}

	playlists, err := c.catalog.Playlists.List(true)
	if err != nil {
		c.logger.Warn("failed to list playlists for metrics", "error", err)
		ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, 0)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.playlistsDesc, prometheus.GaugeValue, float64(len(playlists)))

	for status, n := range map[models.TrackStatus]int{
		models.StatusPending:    counts.Pending,
		models.StatusProcessing: counts.Processing,
		models.StatusDownloaded: counts.Downloaded,
		models.StatusDuplicate:  counts.Duplicate,
		models.StatusFailed:     counts.Failed,
		models.StatusRestricted: counts.Restricted,
	} {
		ch <- prometheus.MustNewConstMetric(c.tracksDesc, prometheus.GaugeValue, float64(n), string(status))
	}
}
