package main

import (
	"fmt"
	"os"

	"github.com/tuannm99/minidb/internal"
	"github.com/tuannm99/minidb/internal/engine"
)

func main() {
	cfg := internal.DefaultConfig()
	if len(os.Args) > 1 {
		loaded, err := internal.LoadConfig(os.Args[1])
		if err != nil {
			fmt.Println("load config:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.Storage.Dir = "./basedir"

	db, err := engine.Open(cfg)
	if err != nil {
		fmt.Println("open:", err)
		os.Exit(1)
	}
	defer db.Close()

	tbl, err := db.CreateTable("users")
	if err != nil {
		tbl, err = db.OpenTable("users")
		if err != nil {
			fmt.Println("open table:", err)
			os.Exit(1)
		}
	}

	tid, _ := tbl.Insert([]byte("Tuan"))
	fmt.Println("inserted at:", tid)

	for it := tbl.Iterator(); it.HasNext(); {
		tup, err := it.Next()
		if err != nil {
			break
		}
		fmt.Printf("%v: %s\n", tup.ID, tup.Data)
	}

	fmt.Println(db.Stats())
}
