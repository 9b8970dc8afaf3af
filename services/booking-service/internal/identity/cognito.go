package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

const consultantAttribute = "custom:consultant_id"

// CognitoAPI is the subset of the Cognito user pool admin API the provider calls.
type CognitoAPI interface {
	ListUsers(ctx context.Context, in *cip.ListUsersInput, optFns ...func(*cip.Options)) (*cip.ListUsersOutput, error)
	AdminCreateUser(ctx context.Context, in *cip.AdminCreateUserInput, optFns ...func(*cip.Options)) (*cip.AdminCreateUserOutput, error)
	AdminSetUserPassword(ctx context.Context, in *cip.AdminSetUserPasswordInput, optFns ...func(*cip.Options)) (*cip.AdminSetUserPasswordOutput, error)
	AdminDeleteUser(ctx context.Context, in *cip.AdminDeleteUserInput, optFns ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error)
}

type CognitoProvider struct {
	api    CognitoAPI
	poolID string
}

var _ Provider = (*CognitoProvider)(nil)

// NewCognitoProvider uses the default AWS credential chain.
func NewCognitoProvider(ctx context.Context, region, userPoolID string) (*CognitoProvider, error) {
	if strings.TrimSpace(userPoolID) == "" {
		return nil, errors.New("cognito user pool id is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewCognitoProviderWithClient(cip.NewFromConfig(cfg), userPoolID), nil
}

func NewCognitoProviderWithClient(api CognitoAPI, userPoolID string) *CognitoProvider {
	return &CognitoProvider{api: api, poolID: userPoolID}
}

func (p *CognitoProvider) FindByEmail(ctx context.Context, email string) (Account, error) {
	filter := fmt.Sprintf(`email = "%s"`, strings.ReplaceAll(emailKey(email), `"`, ""))
	out, err := p.api.ListUsers(ctx, &cip.ListUsersInput{
		UserPoolId: aws.String(p.poolID),
		Filter:     aws.String(filter),
		Limit:      aws.Int32(1),
	})
	if err != nil {
		return Account{}, err
	}
	if len(out.Users) == 0 {
		return Account{}, ErrAccountNotFound
	}
	return toAccount(out.Users[0]), nil
}

func (p *CognitoProvider) CreateAccount(ctx context.Context, in CreateInput) (Account, error) {
	email := emailKey(in.Email)
	input := &cip.AdminCreateUserInput{
		UserPoolId:        aws.String(p.poolID),
		Username:          aws.String(email),
		TemporaryPassword: aws.String(in.TemporaryPassword),
		UserAttributes: []types.AttributeType{
			{Name: aws.String("email"), Value: aws.String(email)},
			{Name: aws.String("email_verified"), Value: aws.String("true")},
			{Name: aws.String(consultantAttribute), Value: aws.String(strconv.FormatInt(in.ConsultantID, 10))},
		},
	}
	if in.SendInvite {
		input.DesiredDeliveryMediums = []types.DeliveryMediumType{types.DeliveryMediumTypeEmail}
	} else {
		input.MessageAction = types.MessageActionTypeSuppress
	}

	out, err := p.api.AdminCreateUser(ctx, input)
	if err != nil {
		var exists *types.UsernameExistsException
		if errors.As(err, &exists) {
			return Account{}, ErrAccountExists
		}
		return Account{}, err
	}
	if out.User == nil {
		return Account{Username: email, Email: email, Status: StatusForceChangePassword, Enabled: true}, nil
	}
	return toAccount(*out.User), nil
}

func (p *CognitoProvider) SetTemporaryPassword(ctx context.Context, username, password string) error {
	_, err := p.api.AdminSetUserPassword(ctx, &cip.AdminSetUserPasswordInput{
		UserPoolId: aws.String(p.poolID),
		Username:   aws.String(username),
		Password:   aws.String(password),
		Permanent:  false,
	})
	return mapNotFound(err)
}

func (p *CognitoProvider) DeleteAccount(ctx context.Context, username string) error {
	_, err := p.api.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{
		UserPoolId: aws.String(p.poolID),
		Username:   aws.String(username),
	})
	return mapNotFound(err)
}

func (p *CognitoProvider) ListAccounts(ctx context.Context) ([]Account, error) {
	pager := cip.NewListUsersPaginator(p.api, &cip.ListUsersInput{
		UserPoolId: aws.String(p.poolID),
	})
	var out []Account
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, u := range page.Users {
			out = append(out, toAccount(u))
		}
	}
	return out, nil
}

func toAccount(u types.UserType) Account {
	a := Account{
		Username: aws.ToString(u.Username),
		Status:   string(u.UserStatus),
		Enabled:  u.Enabled,
	}
	for _, attr := range u.Attributes {
		switch aws.ToString(attr.Name) {
		case "email":
			a.Email = emailKey(aws.ToString(attr.Value))
		case consultantAttribute:
			a.ConsultantID = aws.ToString(attr.Value)
		}
	}
	return a
}

func mapNotFound(err error) error {
	var nf *types.UserNotFoundException
	if errors.As(err, &nf) {
		return ErrAccountNotFound
	}
	return err
}
