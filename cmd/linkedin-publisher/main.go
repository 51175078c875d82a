package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alexflint/go-arg"
	"github.com/rs/zerolog"
)

type testArgs struct{}

type authArgs struct{}

type tokenArgs struct {
	Code        string `arg:"positional,required" help:"authorization code from the redirect"`
	RedirectURI string `arg:"positional,required" help:"redirect uri the code was issued for"`
}

type postArgs struct {
	ID    int  `arg:"positional,required" help:"post number from the content document"`
	Force bool `help:"post even if the ledger says it was posted already"`
}

type listArgs struct{}

type secretsArgs struct {
	Encrypt []string `help:"files to seal with a passphrase"`
	Decrypt []string `help:"sealed files to open"`
}

type args struct {
	EnvFile             string   `arg:"--env-file,env:LINKEDIN_ENV_FILE" default:".env" help:"file holding the app credentials and tokens"`
	RedirectURI         string   `arg:"--redirect-uri" help:"redirect uri registered for the app, overrides LINKEDIN_REDIRECT_URI"`
	Content             string   `arg:"--content,env:LINKEDIN_CONTENT" default:"posts.md" help:"document with the posts"`
	GoogleDoc           string   `arg:"--google-doc" help:"read the posts from this google doc instead of --content"`
	GoogleClientSecrets string   `arg:"--google-client-secrets,env:GOOGLE_CLIENT_SECRETS" default:"secrets/google-oauth.json"`
	Ledger              string   `arg:"--ledger,env:LINKEDIN_LEDGER" default:"posted.json" help:"file or gs://bucket/object recording published posts"`
	APIVersion          string   `arg:"--api-version" default:"202405" help:"value of the LinkedIn-Version header"`
	Scopes              []string `arg:"--scopes" help:"scopes to request when authorizing"`
	Verbose             bool     `arg:"-v,--verbose"`

	Test    *testArgs    `arg:"subcommand:test" help:"check that the stored access token works"`
	Auth    *authArgs    `arg:"subcommand:auth" help:"authorize in the browser and store a new token"`
	Token   *tokenArgs   `arg:"subcommand:token" help:"exchange an authorization code obtained elsewhere"`
	Post    *postArgs    `arg:"subcommand:post" help:"publish one post"`
	List    *listArgs    `arg:"subcommand:list" help:"list the posts in the content document"`
	Secrets *secretsArgs `arg:"subcommand:secrets" help:"seal or open credential files"`
}

func (args) Description() string {
	return "publishes posts from a document to a LinkedIn organization page or profile"
}

func main() {
	var args args
	p := arg.MustParse(&args)

	level := zerolog.InfoLevel
	if args.Verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logger.WithContext(ctx)

	var err error
	switch {
	case args.Test != nil:
		err = runTest(ctx, &args)
	case args.Auth != nil:
		err = runAuth(ctx, &args)
	case args.Token != nil:
		err = runToken(ctx, &args, args.Token)
	case args.Post != nil:
		err = runPost(ctx, &args, args.Post)
	case args.List != nil:
		err = runList(ctx, &args)
	case args.Secrets != nil:
		if len(args.Secrets.Encrypt) == 0 && len(args.Secrets.Decrypt) == 0 {
			p.Fail("you must provide one of --encrypt or --decrypt")
		}
		err = runSecrets(args.Secrets)
	default:
		p.Fail("you must specify a subcommand")
	}

	if err != nil {
		fmt.Println(err)
		if hint := nextStep(err); hint != "" {
			fmt.Println(hint)
		}
		stop()
		os.Exit(1)
	}
}
