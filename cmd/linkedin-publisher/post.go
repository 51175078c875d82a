package main

import (
	"context"
	"fmt"

	"github.com/alexflint/linkedin-publisher/ledger"
	"github.com/kr/pretty"
	"github.com/rs/zerolog"
)

func runPost(ctx context.Context, args *args, cmd *postArgs) error {
	doc, err := loadDocument(ctx, args)
	if err != nil {
		return err
	}

	u, err := doc.Unit(cmd.ID)
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Debug().Msg(pretty.Sprint(u))

	led, err := ledger.Open(ctx, args.Ledger)
	if err != nil {
		return err
	}

	o := newOrchestrator(ctx, args)
	o.Ledger = led

	res, err := o.Post(ctx, u, cmd.Force)
	if err != nil {
		return err
	}

	fmt.Printf("published post %d %q as %s using %s\n", u.ID, u.Title, res.PostID, res.Variant)
	return nil
}

func runList(ctx context.Context, args *args) error {
	doc, err := loadDocument(ctx, args)
	if err != nil {
		return err
	}

	led, err := ledger.Open(ctx, args.Ledger)
	if err != nil {
		return err
	}

	posted, err := led.Posted(ctx)
	if err != nil {
		return err
	}

	for _, u := range doc.Units {
		status := ""
		if posted[u.ID] {
			status = "posted"
		}
		fmt.Printf("%3d  %-6s  %-15s  %s\n", u.ID, status, u.Audience, u.Title)
	}
	if len(doc.Units) == 0 {
		fmt.Println("no posts found")
	}
	return nil
}
