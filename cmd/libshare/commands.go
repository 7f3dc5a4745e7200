package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bitfsorg/libshare-go/client"
	"github.com/bitfsorg/libshare-go/config"
	"github.com/bitfsorg/libshare-go/identity"
	"github.com/bitfsorg/libshare-go/ledger"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runInit(args []string) error {
	fs, g := newFlagSet("init")
	network := fs.String("network", "", "network (mainnet or testnet)")
	force := fs.Bool("force", false, "overwrite an existing configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if *network != "" {
		cfg.Network = *network
		if err := config.ValidateConfig(cfg); err != nil {
			return err
		}
	}
	path := config.ConfigPath(cfg.DataDir)
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.SaveConfig(path, cfg); err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runKeygen(args []string) error {
	fs, g := newFlagSet("keygen")
	force := fs.Bool("force", false, "overwrite an existing key file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	path := g.keyPath(cfg)
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	kp, err := identity.Generate(cfg.Mainnet())
	if err != nil {
		return err
	}
	if err := identity.SaveKeyFile(path, kp.PrivateKey); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "# Private key written to %s\n", path)
	fmt.Printf("identity:   %s\npublic key: %s\n", kp.Identity, identity.PublicKeyHex(kp.PublicKey))
	return nil
}

func runWhoami(args []string) error {
	fs, g := newFlagSet("whoami")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	priv, err := identity.LoadKeyFile(g.keyPath(cfg))
	if err != nil {
		return err
	}
	kp, err := identity.FromPrivateKey(priv, cfg.Mainnet())
	if err != nil {
		return err
	}
	fmt.Printf("identity:   %s\npublic key: %s\n", kp.Identity, identity.PublicKeyHex(kp.PublicKey))
	return nil
}

func runRegister(args []string) error {
	fs, g := newFlagSet("register")
	return withClient(fs, g, args, 0, "register", func(ctx context.Context, c *client.Client, _ []string) error {
		id, err := c.Register(ctx)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	})
}

func runUpload(args []string) error {
	fs, g := newFlagSet("upload")
	name := fs.String("name", "", "file name recorded on the ledger (default: base name of the path)")
	return withClient(fs, g, args, 1, "upload [--name N] <path>", func(ctx context.Context, c *client.Client, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if *name == "" {
			*name = filepath.Base(args[0])
		}
		res, err := c.Upload(ctx, *name, data)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%d bytes\n", res.FileID, res.Content, res.Size)
		return nil
	})
}

func runShare(args []string) error {
	fs, g := newFlagSet("share")
	return withClient(fs, g, args, 2, "share <file-id> <identity>", func(ctx context.Context, c *client.Client, args []string) error {
		id, recipient, err := parseFileAndIdentity(args)
		if err != nil {
			return err
		}
		res, err := c.Share(ctx, id, recipient)
		if err != nil {
			return err
		}
		fmt.Printf("shared with %s (key blob %s)\n", res.Recipient, res.KeyBlob)
		return nil
	})
}

func runUnshare(args []string) error {
	fs, g := newFlagSet("unshare")
	return withClient(fs, g, args, 2, "unshare <file-id> <identity>", func(ctx context.Context, c *client.Client, args []string) error {
		id, recipient, err := parseFileAndIdentity(args)
		if err != nil {
			return err
		}
		return c.Unshare(ctx, id, recipient)
	})
}

func runDownload(args []string) error {
	fs, g := newFlagSet("download")
	output := fs.StringP("output", "o", "", "write to this path instead of stdout")
	return withClient(fs, g, args, 1, "download [-o path] <file-id>", func(ctx context.Context, c *client.Client, args []string) error {
		id, err := ledger.ParseFileID(args[0])
		if err != nil {
			return err
		}
		d, err := c.Download(ctx, id)
		if err != nil {
			return err
		}
		if *output == "" {
			_, err = os.Stdout.Write(d.Plaintext)
			return err
		}
		return os.WriteFile(*output, d.Plaintext, 0600)
	})
}

func runArchive(args []string) error {
	fs, g := newFlagSet("archive")
	return withClient(fs, g, args, 1, "archive <file-id>", func(ctx context.Context, c *client.Client, args []string) error {
		id, err := ledger.ParseFileID(args[0])
		if err != nil {
			return err
		}
		return c.Archive(ctx, id)
	})
}

func runRestore(args []string) error {
	fs, g := newFlagSet("restore")
	return withClient(fs, g, args, 1, "restore <file-id>", func(ctx context.Context, c *client.Client, args []string) error {
		id, err := ledger.ParseFileID(args[0])
		if err != nil {
			return err
		}
		return c.Restore(ctx, id)
	})
}

func runList(args []string) error {
	fs, g := newFlagSet("ls")
	return withClient(fs, g, args, 0, "ls", func(ctx context.Context, c *client.Client, _ []string) error {
		views, err := c.Files(ctx)
		if err != nil {
			return err
		}
		sections := []struct {
			title string
			ids   []ledger.FileID
		}{
			{"mine", views.Mine},
			{"shared with me", views.SharedWithMe},
			{"shared by me", views.SharedByMe},
			{"archived", views.Archived},
		}
		for _, s := range sections {
			fmt.Printf("%s (%d)\n", s.title, len(s.ids))
			for _, id := range s.ids {
				rec, err := c.Record(ctx, id)
				if err != nil {
					fmt.Printf("  %s\t<%v>\n", id, err)
					continue
				}
				fmt.Printf("  %s\t%s\t%s\n", id, rec.Owner, rec.Name)
			}
		}
		return nil
	})
}

func runRecipients(args []string) error {
	fs, g := newFlagSet("recipients")
	return withClient(fs, g, args, 1, "recipients <file-id>", func(ctx context.Context, c *client.Client, args []string) error {
		id, err := ledger.ParseFileID(args[0])
		if err != nil {
			return err
		}
		recipients, err := c.Recipients(ctx, id)
		if err != nil {
			return err
		}
		for _, r := range recipients {
			fmt.Println(r)
		}
		return nil
	})
}

func runPrune(args []string) error {
	fs, g := newFlagSet("prune")
	return withClient(fs, g, args, 1, "prune <file-id>", func(ctx context.Context, c *client.Client, args []string) error {
		id, err := ledger.ParseFileID(args[0])
		if err != nil {
			return err
		}
		pruned, err := c.Prune(ctx, id)
		if err != nil {
			return err
		}
		for _, who := range pruned {
			fmt.Println(who)
		}
		return nil
	})
}

// runBlobs lists the locators held by the local blob store.
func runBlobs(args []string) error {
	fs, g := newFlagSet("blobs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("usage: libshare blobs")
	}
	e, err := openEnv(g)
	if err != nil {
		return err
	}
	defer e.Close()

	locs, err := e.local.List()
	if err != nil {
		return err
	}
	for _, loc := range locs {
		fmt.Println(loc)
	}
	return nil
}

func parseFileAndIdentity(args []string) (ledger.FileID, identity.Identity, error) {
	id, err := ledger.ParseFileID(args[0])
	if err != nil {
		return "", "", err
	}
	recipient, err := identity.Parse(args[1])
	if err != nil {
		return "", "", err
	}
	return id, recipient, nil
}
