package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AlienQ7/iotpro/internal/infrastructure/logging"
)

func testService(t *testing.T) *Service {
	t.Helper()
	db := testDB(t)
	return NewService(NewUserRepository(db), testSecret, 24*time.Hour, logging.Default())
}

func TestSignupLogin_RoundTrip(t *testing.T) {
	svc := testService(t)

	result, err := svc.Signup(context.Background(), SignupRequest{
		Name:     "Ann",
		Email:    "Ann@X.com",
		Password: "secret-pass",
	})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if result.User.Email != "ann@x.com" {
		t.Errorf("stored email = %q, want normalized %q", result.User.Email, "ann@x.com")
	}
	if len(result.RecoveryCode) != 12 {
		t.Errorf("recovery code length = %d, want 12", len(result.RecoveryCode))
	}
	if result.User.ID == "" {
		t.Error("user ID should be assigned")
	}

	// Login with a differently-cased email must find the same account
	login, err := svc.Login(context.Background(), LoginRequest{
		Email:    "ANN@x.COM",
		Password: "secret-pass",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if login.Token == "" {
		t.Fatal("login should issue a token")
	}

	claims, err := svc.VerifyToken(login.Token)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.UserID != result.User.ID {
		t.Errorf("token user id = %q, want %q", claims.UserID, result.User.ID)
	}
	if claims.Email != "ann@x.com" {
		t.Errorf("token email = %q, want %q", claims.Email, "ann@x.com")
	}
}

func TestSignup_Validation(t *testing.T) {
	svc := testService(t)

	tests := []struct {
		name string
		req  SignupRequest
	}{
		{"missing name", SignupRequest{Email: "a@b.co", Password: "secret-pass"}},
		{"missing email", SignupRequest{Name: "Ann", Password: "secret-pass"}},
		{"bad email", SignupRequest{Name: "Ann", Email: "not-an-email", Password: "secret-pass"}},
		{"missing password", SignupRequest{Name: "Ann", Email: "a@b.co"}},
		{"short password", SignupRequest{Name: "Ann", Email: "a@b.co", Password: "short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Signup(context.Background(), tt.req); !errors.Is(err, ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	svc := testService(t)

	req := SignupRequest{Name: "Ann", Email: "ann@x.com", Password: "secret-pass"}
	if _, err := svc.Signup(context.Background(), req); err != nil {
		t.Fatalf("first Signup() error = %v", err)
	}

	// Same address, different casing
	req.Email = "Ann@X.com"
	if _, err := svc.Signup(context.Background(), req); !errors.Is(err, ErrEmailExists) {
		t.Errorf("duplicate signup error = %v, want ErrEmailExists", err)
	}
}

func TestLogin_EnumerationResistance(t *testing.T) {
	svc := testService(t)

	if _, err := svc.Signup(context.Background(), SignupRequest{
		Name: "Ann", Email: "ann@x.com", Password: "secret-pass",
	}); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	// Unknown email and wrong password must be the same error value,
	// so responses cannot distinguish the two.
	_, errAbsent := svc.Login(context.Background(), LoginRequest{Email: "nobody@x.com", Password: "secret-pass"})
	_, errWrong := svc.Login(context.Background(), LoginRequest{Email: "ann@x.com", Password: "wrong-pass!"})

	if !errors.Is(errAbsent, ErrInvalidCredentials) {
		t.Errorf("unknown email error = %v, want ErrInvalidCredentials", errAbsent)
	}
	if !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", errWrong)
	}
	if errAbsent.Error() != errWrong.Error() {
		t.Errorf("error messages differ: %q vs %q", errAbsent, errWrong)
	}
}

func TestForgotReset_RoundTrip(t *testing.T) {
	svc := testService(t)

	signup, err := svc.Signup(context.Background(), SignupRequest{
		Name: "Ann", Email: "ann@x.com", Password: "old-password",
	})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	reset, err := svc.ForgotReset(context.Background(), ResetRequest{
		Email:        "ann@x.com",
		RecoveryCode: signup.RecoveryCode,
		NewPassword:  "new-password",
	})
	if err != nil {
		t.Fatalf("ForgotReset() error = %v", err)
	}
	if len(reset.RecoveryCode) != 12 {
		t.Errorf("replacement code length = %d, want 12", len(reset.RecoveryCode))
	}
	if reset.RecoveryCode == signup.RecoveryCode {
		t.Error("replacement code should differ from the consumed one")
	}

	// Old password is dead, new one works
	if _, err := svc.Login(context.Background(), LoginRequest{Email: "ann@x.com", Password: "old-password"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(context.Background(), LoginRequest{Email: "ann@x.com", Password: "new-password"}); err != nil {
		t.Errorf("new password Login() error = %v", err)
	}
}

func TestForgotReset_CodeIsSingleUse(t *testing.T) {
	svc := testService(t)

	signup, err := svc.Signup(context.Background(), SignupRequest{
		Name: "Ann", Email: "ann@x.com", Password: "old-password",
	})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	req := ResetRequest{
		Email:        "ann@x.com",
		RecoveryCode: signup.RecoveryCode,
		NewPassword:  "new-password",
	}
	if _, err := svc.ForgotReset(context.Background(), req); err != nil {
		t.Fatalf("first ForgotReset() error = %v", err)
	}

	// The consumed code must not work a second time
	req.NewPassword = "another-password"
	if _, err := svc.ForgotReset(context.Background(), req); !errors.Is(err, ErrInvalidRecoveryCode) {
		t.Errorf("stale code error = %v, want ErrInvalidRecoveryCode", err)
	}
}

func TestForgotReset_WrongCode(t *testing.T) {
	svc := testService(t)

	if _, err := svc.Signup(context.Background(), SignupRequest{
		Name: "Ann", Email: "ann@x.com", Password: "secret-pass",
	}); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	// Wrong code and unknown email collapse into the same failure
	_, errWrong := svc.ForgotReset(context.Background(), ResetRequest{
		Email: "ann@x.com", RecoveryCode: "WRONGCODE123", NewPassword: "new-password",
	})
	_, errAbsent := svc.ForgotReset(context.Background(), ResetRequest{
		Email: "nobody@x.com", RecoveryCode: "WRONGCODE123", NewPassword: "new-password",
	})

	if !errors.Is(errWrong, ErrInvalidRecoveryCode) {
		t.Errorf("wrong code error = %v, want ErrInvalidRecoveryCode", errWrong)
	}
	if !errors.Is(errAbsent, ErrInvalidRecoveryCode) {
		t.Errorf("unknown email error = %v, want ErrInvalidRecoveryCode", errAbsent)
	}
}

func TestForgotLookup(t *testing.T) {
	svc := testService(t)

	// Registered or not, the acknowledgement is identical
	if err := svc.ForgotLookup(context.Background(), "anyone@x.com"); err != nil {
		t.Errorf("ForgotLookup() error = %v", err)
	}
	if err := svc.ForgotLookup(context.Background(), ""); !errors.Is(err, ErrValidation) {
		t.Errorf("missing email error = %v, want ErrValidation", err)
	}
}

func TestDelete(t *testing.T) {
	svc := testService(t)

	if _, err := svc.Signup(context.Background(), SignupRequest{
		Name: "Ann", Email: "ann@x.com", Password: "secret-pass",
	}); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	if err := svc.Delete(context.Background(), "Ann@X.com"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	// Gone: login now fails, second delete reports not found
	if _, err := svc.Login(context.Background(), LoginRequest{Email: "ann@x.com", Password: "secret-pass"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("login after delete error = %v, want ErrInvalidCredentials", err)
	}
	if err := svc.Delete(context.Background(), "ann@x.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second delete error = %v, want ErrUserNotFound", err)
	}
}
