package cmds

import (
	"context"
	"fmt"
	"io"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatsync/pkg/config"
)

type AccountCreateCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = &AccountCreateCommand{}

type AccountCreateSettings struct {
	Email    string `glazed:"email"`
	Password string `glazed:"password"`
}

func NewAccountCreateCommand(cfg config.Config) (*AccountCreateCommand, error) {
	serverSection, err := config.NewServerSection(cfg.Server)
	if err != nil {
		return nil, errors.Wrap(err, "build server section")
	}
	return &AccountCreateCommand{
		CommandDescription: cmds.NewCommandDescription(
			"create",
			cmds.WithShort("Create an email+password account"),
			cmds.WithFlags(
				fields.New("email", fields.TypeString,
					fields.WithHelp("Account email"),
					fields.WithRequired(true)),
				fields.New("password", fields.TypeString,
					fields.WithHelp("Account password"),
					fields.WithRequired(true)),
			),
			cmds.WithSections(serverSection),
		),
	}, nil
}

func (c *AccountCreateCommand) RunIntoWriter(ctx context.Context, parsedLayers *values.Values, w io.Writer) error {
	s := &AccountCreateSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	ss := config.ServerSettings{}
	if err := parsedLayers.DecodeSectionInto(config.ServerSlug, &ss); err != nil {
		return err
	}

	accs, err := openAccounts(ss.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = accs.Close() }()

	uid, err := accs.Register(ctx, s.Email, s.Password)
	if err != nil {
		return errors.Wrap(err, "create account")
	}
	_, err = fmt.Fprintf(w, "created %s (%s)\n", s.Email, uid)
	return err
}
