package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kataras/tablewriter"
	"github.com/lensesio/tableprinter"

	kaiku "github.com/Miikinki/KAIKU"
)

type clusterRow struct {
	District string  `header:"district"`
	Cell     string  `header:"cell"`
	Lat      float64 `header:"lat"`
	Lng      float64 `header:"lng"`
	Count    int     `header:"msgs"`
	Latest   string  `header:"latest"`
}

func printClustersForever(engine *kaiku.Engine, zoom float64, refreshRate int) {
	for {
		printClusters(engine, zoom)
		time.Sleep(time.Duration(refreshRate) * time.Second)
	}
}

func printClusters(engine *kaiku.Engine, zoom float64) {
	clusters := engine.Clusters(zoom, nil)
	if len(clusters) == 0 {
		return
	}

	now := time.Now()
	printer := tableprinter.New(os.Stdout)
	rows := make([]clusterRow, 0, len(clusters))
	for _, c := range clusters {
		district := c.District
		if c.DistrictEmoji != "" {
			district = c.DistrictEmoji + " " + district
		}
		rows = append(rows, clusterRow{
			District: district,
			Cell:     string(c.CellID),
			Lat:      c.Center.Lat,
			Lng:      c.Center.Lng,
			Count:    c.Count,
			Latest:   fmt.Sprintf("%ds ago", int(now.Sub(c.LatestAt).Seconds())),
		})
	}

	printer.BorderTop, printer.BorderBottom, printer.BorderLeft, printer.BorderRight = true, true, true, true
	printer.CenterSeparator = "│"
	printer.ColumnSeparator = "│"
	printer.RowSeparator = "─"
	printer.HeaderBgColor = tablewriter.BgBlackColor
	printer.HeaderFgColor = tablewriter.FgGreenColor

	printer.Print(rows)
}
