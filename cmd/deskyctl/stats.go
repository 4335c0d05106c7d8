package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

type cmdStats struct{}

func (cmd *cmdStats) Execute([]string) error {
	var ts = openStore()
	defer ts.Close()

	var stats, err = ts.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("Texts:        %d across %d files\n", stats.TotalTexts, stats.NumFiles)
	fmt.Printf("Original:     %s\n", humanize.IBytes(uint64(stats.TotalOriginalBytes)))
	fmt.Printf("Compressed:   %s\n", humanize.IBytes(uint64(stats.TotalCompressedBytes)))
	fmt.Printf("Ratio:        %.2f\n", stats.CompressionRatio)
	fmt.Printf("Dictionaries: %d\n\n", stats.NumDictionaries)

	parts, err := ts.PartitionStats()
	if err != nil {
		return err
	}

	var table = tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Partition", "Texts", "Original", "Compressed", "Dicts"})

	for _, p := range parts {
		table.Append([]string{
			p.Key.String(),
			fmt.Sprintf("%d", p.Texts),
			humanize.IBytes(uint64(p.OriginalBytes)),
			humanize.IBytes(uint64(p.CompressedBytes)),
			fmt.Sprintf("%d", p.Dictionaries),
		})
	}
	table.Render()
	return nil
}
