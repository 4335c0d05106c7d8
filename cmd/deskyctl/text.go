package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"go.opendesky.dev/textstore/store"
)

// textArgs are the coordinates shared by get, put, and del.
type textArgs struct {
	ID     int64 `long:"id" required:"true" description:"Attachment ID"`
	Region int64 `long:"region" description:"Region ID (0 for the unknown bucket)"`
	Year   int   `long:"year" description:"Publication year (0 for the no-date bucket)"`
}

func (a textArgs) context() store.TextContext {
	return store.TextContext{ItemID: a.ID, RegionID: a.Region, Year: a.Year}
}

type cmdGet struct {
	textArgs
}

func (cmd *cmdGet) Execute([]string) error {
	var ts = openStore()
	defer ts.Close()

	var text, ok, err = ts.LoadByPartition(cmd.ID, cmd.Region, cmd.Year)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Errorf("no text stored for attachment %d", cmd.ID)
	}
	_, err = os.Stdout.WriteString(text)
	return err
}

type cmdPut struct {
	textArgs
}

func (cmd *cmdPut) Execute([]string) error {
	var ts = openStore()
	defer ts.Close()

	var text, err = io.ReadAll(os.Stdin)
	if err != nil {
		return errors.WithMessage(err, "reading stdin")
	}
	size, err := ts.Save(cmd.context(), string(text))
	if err != nil {
		return err
	}
	fmt.Printf("stored %s as %s\n",
		humanize.IBytes(uint64(len(text))), humanize.IBytes(uint64(size)))
	return nil
}

type cmdDel struct {
	textArgs
}

func (cmd *cmdDel) Execute([]string) error {
	var ts = openStore()
	defer ts.Close()

	var deleted, err = ts.Delete(cmd.context())
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Printf("no text stored for attachment %d\n", cmd.ID)
		return nil
	}
	fmt.Println("deleted")
	return nil
}
