package main

import (
	"fmt"

	"go.opendesky.dev/textstore/partition"
)

type cmdTrainGlobal struct{}

func (cmd *cmdTrainGlobal) Execute([]string) error {
	var ts = openStore()
	defer ts.Close()

	var trained, err = ts.TrainGlobalDictionary()
	if err != nil {
		return err
	}
	if !trained {
		fmt.Println("not trained (too few samples; see log)")
		return nil
	}
	fmt.Println("trained")
	return nil
}

type cmdRecompress struct {
	Region int64 `long:"region" description:"Region of a single partition to re-compress (0 for the unknown bucket)"`
	Year   int   `long:"year" description:"Year of a single partition to re-compress (0 for the no-date bucket)"`
	All    bool  `long:"all" description:"Re-compress every partition"`
}

func (cmd *cmdRecompress) Execute([]string) error {
	var ts = openStore()
	defer ts.Close()

	if cmd.All {
		var results, err = ts.RecompressAll()
		if err != nil {
			return err
		}
		var total int
		for ref, count := range results {
			fmt.Printf("%s: %d\n", ref, count)
			total += count
		}
		fmt.Printf("re-compressed %d texts in %d partitions\n", total, len(results))
		return nil
	}

	var key = partition.Resolve(cmd.Region, cmd.Year)
	count, err := ts.RecompressPartition(key)
	if err != nil {
		return err
	}
	fmt.Printf("re-compressed %d texts in %s\n", count, key)
	return nil
}
