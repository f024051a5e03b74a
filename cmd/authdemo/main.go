// Command authdemo wires the identity subsystem against the in-memory fakes
// and walks the full lifecycle: invitation deep link, PIN creation, logout,
// cold-start restore, PIN login. Useful for eyeballing transitions and as a
// living example of the wiring.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/debug"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sitelink/go-client-auth/autologin"
	"github.com/sitelink/go-client-auth/clients"
	"github.com/sitelink/go-client-auth/clients/backendfake"
	"github.com/sitelink/go-client-auth/deeplink"
	"github.com/sitelink/go-client-auth/internal/config"
	"github.com/sitelink/go-client-auth/invitation"
	"github.com/sitelink/go-client-auth/pinauth"
	"github.com/sitelink/go-client-auth/session"
	"github.com/sitelink/go-client-auth/vault"
	"github.com/sitelink/go-client-auth/vault/storagefake"
)

const demoPIN = "4271"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running demo: %s\n", err)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	backend := backendfake.NewFakeBackend()
	token := backend.SeedInvitedClient(clients.Client{
		FirstName:    "Dana",
		LastName:     "Whitmore",
		Email:        "dana.whitmore@example.com",
		Phone:        "+61 400 000 000",
		ProjectName:  "Harbourview Duplex",
		SiteLocation: "12 Marine Parade",
	})

	credentialVault, err := vault.New(storagefake.NewFakeStorage(), vault.WithLogger(logger))
	if err != nil {
		return err
	}
	exchanger, err := invitation.New(backend, credentialVault, invitation.WithLogger(logger))
	if err != nil {
		return err
	}
	authenticator, err := pinauth.New(backend, credentialVault, pinauth.WithLogger(logger))
	if err != nil {
		return err
	}
	store, err := session.NewStore(session.Deps{
		Backend:       backend,
		Vault:         credentialVault,
		Exchanger:     exchanger,
		Authenticator: authenticator,
	}, session.WithLogger(logger))
	if err != nil {
		return err
	}

	store.Subscribe(func(state session.AuthState) {
		fmt.Printf("  -> %-15s authenticated=%-5v requiresPIN=%-5v loading=%v\n",
			state.State, state.IsAuthenticated(), state.RequiresPIN, state.Loading)
	})

	ctx := context.Background()

	fmt.Println("\n[1] cold start on a fresh install")
	orchestrator, err := autologin.New(store, autologin.WithTimeout(c.GetRestoreTimeout()), autologin.WithLogger(logger))
	if err != nil {
		return err
	}
	orchestrator.Run(ctx)

	fmt.Println("\n[2] invitation deep link arrives")
	router, err := deeplink.New(c.GetDeepLinkScheme(), c.GetDeepLinkHost(), store, navigatorFunc(func(t string) {
		store.AuthenticateWithInvitation(ctx, t)
	}), deeplink.WithLogger(logger))
	if err != nil {
		return err
	}
	router.Handle(fmt.Sprintf("%s://%s?token=%s", c.GetDeepLinkScheme(), c.GetDeepLinkHost(), token))

	fmt.Println("\n[3] client sets a PIN")
	if !store.CreatePIN(demoPIN) {
		return errors.Errorf("create pin: %s", store.LastError())
	}

	fmt.Println("\n[4] relaunch with no network: restore fails, PIN unlocks instead")
	backend.FailNextWith(clients.NewBackendError(clients.CodeUnavailable, "simulated outage"))
	relaunch, err := autologin.New(store, autologin.WithLogger(logger))
	if err != nil {
		return err
	}
	relaunch.Run(ctx)
	if !store.LoginWithPIN(ctx, demoPIN) {
		return errors.Errorf("pin login: %s", store.LastError())
	}

	fmt.Println("\n[5] logout keeps the PIN but revokes the remembered credential")
	store.Logout(ctx)
	if !store.LoginWithPIN(ctx, demoPIN) {
		fmt.Printf("  pin login refused as expected: %s\n", store.LastError())
	}

	return nil
}

type navigatorFunc func(token string)

func (f navigatorFunc) NavigateToInvitation(token string) {
	f(token)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
