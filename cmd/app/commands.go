package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/starford/folio/internal"
	"github.com/starford/folio/internal/export"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/project"
	"github.com/starford/folio/internal/projectservice"
)

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "new",
		Usage:     "Create a project directory named after the title",
		ArgsUsage: "<title>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "author", Aliases: []string{"a"}, Usage: "Author name"},
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Value: ".", Usage: "Parent directory"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, 1, "<title>"); err != nil {
				return err
			}
			proj, err := project.Create(cmd.String("dir"), cmd.Args().First(), cmd.String("author"))
			if err != nil {
				return err
			}
			fmt.Println(proj.Path())
			return nil
		},
	}
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Print project metadata, the manuscript tree and word count",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withSession(cmd, func(s *internal.Session) error {
				return printJSON(s.Service.Project(ctx))
			})
		},
	}
}

func chapterCommand() *cli.Command {
	return &cli.Command{
		Name:  "chapter",
		Usage: "Manage chapters",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List chapters in manuscript order",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withSession(cmd, func(s *internal.Session) error {
						items, err := s.Service.ListChapters(ctx)
						if err != nil {
							return err
						}
						for _, it := range items {
							fmt.Printf("%s\t%-8s\t%6d\t%s\n", it.ID, it.Status, it.WordCount, it.Title)
						}
						return nil
					})
				},
			},
			{
				Name:      "add",
				Usage:     "Append a chapter to the manuscript",
				ArgsUsage: "<title>",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "parent", Usage: "Parent node id (defaults to the book root)"},
				}, contentFlags...),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 1, "<title>"); err != nil {
						return err
					}
					content, _, err := readContent(cmd)
					if err != nil {
						return err
					}
					return withSession(cmd, func(s *internal.Session) error {
						c, err := s.Service.CreateChapter(ctx, cmd.Args().First(), cmd.String("parent"), content)
						if err != nil {
							return err
						}
						fmt.Println(c.ID)
						return nil
					})
				},
			},
			{
				Name:      "show",
				Usage:     "Print a chapter as JSON",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 1, "<id>"); err != nil {
						return err
					}
					return withSession(cmd, func(s *internal.Session) error {
						c, err := s.Service.GetChapter(ctx, cmd.Args().First())
						if err != nil {
							return err
						}
						return printJSON(c)
					})
				},
			},
			{
				Name:      "write",
				Usage:     "Replace a chapter body or change its metadata",
				ArgsUsage: "<id>",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "draft, revised, final or trash"},
					&cli.StringFlag{Name: "mood", Usage: "Scene mood (empty clears it)"},
					&cli.StringFlag{Name: "pov", Usage: "Point-of-view character (empty clears it)"},
					&cli.StringFlag{Name: "checksum", Usage: "Reject the write unless the chapter still has this checksum"},
				}, contentFlags...),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 1, "<id>"); err != nil {
						return err
					}
					var upd projectservice.ChapterUpdate
					content, ok, err := readContent(cmd)
					if err != nil {
						return err
					}
					if ok {
						upd.Content = &content
					}
					if cmd.IsSet("status") {
						st := models.ParseStatus(cmd.String("status"))
						upd.Status = &st
					}
					if cmd.IsSet("mood") {
						v := cmd.String("mood")
						upd.Mood = &v
					}
					if cmd.IsSet("pov") {
						v := cmd.String("pov")
						upd.POV = &v
					}
					return withSession(cmd, func(s *internal.Session) error {
						c, err := s.Service.UpdateChapter(ctx, cmd.Args().First(), upd, cmd.String("checksum"))
						if err != nil {
							return err
						}
						fmt.Println(c.Checksum)
						return nil
					})
				},
			},
			{
				Name:      "rename",
				Usage:     "Rename a chapter",
				ArgsUsage: "<id> <title>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 2, "<id> <title>"); err != nil {
						return err
					}
					return withSession(cmd, func(s *internal.Session) error {
						_, err := s.Service.RenameChapter(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
						return err
					})
				},
			},
			{
				Name:      "rm",
				Usage:     "Delete a chapter and its file",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 1, "<id>"); err != nil {
						return err
					}
					return withSession(cmd, func(s *internal.Session) error {
						return s.Service.DeleteChapter(ctx, cmd.Args().First())
					})
				},
			},
			{
				Name:      "order",
				Usage:     "Replace the child order of a node",
				ArgsUsage: "<id>...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "parent", Usage: "Node whose children are reordered (defaults to the book root)"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 1, "<id>..."); err != nil {
						return err
					}
					return withSession(cmd, func(s *internal.Session) error {
						return s.Service.ReorderChapters(ctx, cmd.Args().Slice(), cmd.String("parent"))
					})
				},
			},
		},
	}
}

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:      "snapshot",
		Usage:     "Save a named copy of the manuscript, or list saved snapshots",
		ArgsUsage: "[name]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "list", Aliases: []string{"l"}, Usage: "List snapshots instead of creating one"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withSession(cmd, func(s *internal.Session) error {
				if cmd.Bool("list") {
					list, err := s.Service.ListSnapshots(ctx)
					if err != nil {
						return err
					}
					return printJSON(list)
				}
				name := cmd.Args().First()
				if name == "" {
					name = "manual"
				}
				p, err := s.Service.CreateSnapshot(ctx, name)
				if err != nil {
					return err
				}
				fmt.Println(p)
				return nil
			})
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export the manuscript (markdown, text, html, latex, epub)",
		ArgsUsage: "<format>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output path (- for stdout)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, 1, "<format>"); err != nil {
				return err
			}
			f, err := export.ParseFormat(cmd.Args().First())
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *internal.Session) error {
				if cmd.String("out") == "-" {
					return s.Service.Export(ctx, f, os.Stdout)
				}
				out, err := s.Service.ExportFile(ctx, f, cmd.String("out"))
				if err != nil {
					return err
				}
				fmt.Println(out)
				return nil
			})
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search chapter bodies",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "case-sensitive", Aliases: []string{"s"}, Usage: "Match case"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of chapters (0 for all)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, 1, "<query>"); err != nil {
				return err
			}
			return withSession(cmd, func(s *internal.Session) error {
				results, err := s.Service.Search(ctx, cmd.Args().First(), cmd.Bool("case-sensitive"), int(cmd.Int("limit")))
				if err != nil {
					return err
				}
				for _, r := range results {
					for _, m := range r.Matches {
						fmt.Printf("%s:%d:%d: %s\n", r.ChapterTitle, m.Line, m.Start, m.Content)
					}
				}
				return nil
			})
		},
	}
}
