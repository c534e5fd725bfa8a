package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"recipeshare_backend/config"
	"recipeshare_backend/handlers"
	"recipeshare_backend/logging"
	"recipeshare_backend/models"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "recipes",
		Short:        "Share recipes: HTTP API and command line",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "recipes.yaml", "config file")

	root.AddCommand(
		initCmd(),
		serveCmd(),
		listCmd(),
		searchCmd(),
		createCmd(),
		updateCmd(),
		deleteCmd(),
		registerCmd(),
	)
	return root
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Logging)
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
			}
			if err := config.Default().Save(configPath); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			defer a.log.Sync()

			s := &handlers.Server{
				Recipes:        a.recipes,
				Auth:           a.auth,
				Log:            a.log,
				MaxUpload:      a.cfg.Server.MaxUploadMB << 20,
				RequestTimeout: a.cfg.RequestTimeout(),
				HTTPClient:     &http.Client{Timeout: a.cfg.RequestTimeout()},
			}
			srv := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           handlers.NewRouter(s, a.cfg.Server.AllowedOrigins, a.filesDir()),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.log.Info("Server starting", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				a.log.Info("Server shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if err := g.Wait(); err != nil {
				a.log.Error("Server failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recipes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd, a.recipes.List(cmd.Context()))
		},
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <ingredient>",
		Short: "List recipes that use an ingredient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd, a.recipes.SearchByIngredient(cmd.Context(), args[0]))
		},
	}
}

// photoFlags selects where a new photo comes from.
type photoFlags struct {
	path    string
	gallery bool
	camera  bool
}

func (p *photoFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.path, "image", "", "local photo to upload")
	cmd.Flags().BoolVar(&p.gallery, "gallery", false, "choose the photo from the gallery")
	cmd.Flags().BoolVar(&p.camera, "camera", false, "take the photo with the camera")
	cmd.MarkFlagsMutuallyExclusive("image", "gallery", "camera")
}

// resolve returns the local photo path, "" when none was asked for. A
// refused or cancelled pick is an error so nothing is saved by accident.
func (p *photoFlags) resolve(ctx context.Context, a *app) (string, error) {
	switch {
	case p.gallery:
		path, ok := a.recipes.PickFromGallery(ctx)
		if !ok {
			return "", errors.New("no photo selected")
		}
		return path, nil
	case p.camera:
		path, ok := a.recipes.TakePhoto(ctx)
		if !ok {
			return "", errors.New("no photo taken")
		}
		return path, nil
	default:
		return p.path, nil
	}
}

func createCmd() *cobra.Command {
	var (
		in    models.NewRecipe
		photo photoFlags
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a recipe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !(models.Recipe{Title: in.Title, Description: in.Description, Ingredients: in.Ingredients}).Complete() {
				return errors.New("complete all fields: --title, --description and at least one --ingredient")
			}
			a, err := loadApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if in.ImagePath, err = photo.resolve(cmd.Context(), a); err != nil {
				return err
			}
			recipe, err := a.recipes.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd, models.Result{Success: true, Recipe: &recipe})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "recipe title")
	cmd.Flags().StringVar(&in.Description, "description", "", "recipe description")
	cmd.Flags().StringArrayVar(&in.Ingredients, "ingredient", nil, "ingredient (repeat for more)")
	cmd.Flags().StringVar(&in.OwnerID, "owner", "", "owning user id")
	photo.register(cmd)
	return cmd
}

func updateCmd() *cobra.Command {
	var (
		title, description string
		ingredients        []string
		clearImage         bool
		photo              photoFlags
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a recipe; omitted flags keep their current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			current, err := a.recipes.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ch := models.RecipeChanges{
				Title:       current.Title,
				Description: current.Description,
				Ingredients: current.Ingredients,
			}
			if cmd.Flags().Changed("title") {
				ch.Title = title
			}
			if cmd.Flags().Changed("description") {
				ch.Description = description
			}
			if cmd.Flags().Changed("ingredient") {
				ch.Ingredients = ingredients
			}
			if !(models.Recipe{Title: ch.Title, Description: ch.Description, Ingredients: ch.Ingredients}).Complete() {
				return errors.New("complete all fields")
			}

			path, err := photo.resolve(cmd.Context(), a)
			if err != nil {
				return err
			}
			switch {
			case path != "":
				ch.Image = models.ReplaceImage(path)
			case clearImage:
				ch.Image = models.ClearImage()
			}

			recipe, err := a.recipes.Update(cmd.Context(), args[0], ch)
			if err != nil {
				return err
			}
			return printJSON(cmd, models.Result{Success: true, Recipe: &recipe})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringArrayVar(&ingredients, "ingredient", nil, "replacement ingredient list (repeat)")
	cmd.Flags().BoolVar(&clearImage, "clear-image", false, "remove the recipe photo")
	photo.register(cmd)
	cmd.MarkFlagsMutuallyExclusive("clear-image", "image", "gallery", "camera")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a recipe (its photo stays in storage)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.recipes.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func registerCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			user, err := a.auth.Register(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return printJSON(cmd, user)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}
