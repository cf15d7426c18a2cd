package profilestore

import (
	"testing"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/permission"
)

func TestDocumentRoundTripKeepsProvidersAndFlags(t *testing.T) {
	created := time.Unix(1700000000, 0).UTC()
	in := goIdentity.RemoteProfile{
		IdentityID:  "id-1",
		Email:       "ada@example.com",
		DisplayName: "Ada",
		RoleFlags:   permission.Flags(1<<3 | 1<<63),
		IsVerified:  true,
		Providers: map[goIdentity.ProviderKind]string{
			goIdentity.ProviderPassword: "id-1",
			goIdentity.ProviderOAuthA:   "g-1",
		},
		CreatedAt: created,
	}

	out := fromDocument(toDocument(in))
	if out.RoleFlags != in.RoleFlags {
		t.Fatalf("role flags changed: %x != %x", out.RoleFlags, in.RoleFlags)
	}
	if out.Providers[goIdentity.ProviderOAuthA] != "g-1" || out.Providers[goIdentity.ProviderPassword] != "id-1" {
		t.Fatalf("providers changed: %+v", out.Providers)
	}
	if !out.CreatedAt.Equal(created) || !out.IsVerified || out.DisplayName != "Ada" {
		t.Fatalf("unexpected profile: %+v", out)
	}
}

func TestUpdateSetOnlyContainsProvidedFields(t *testing.T) {
	verified := true
	set := updateSet(goIdentity.ProfileUpdate{IsVerified: &verified})
	if len(set) != 1 || set["is_verified"] != true {
		t.Fatalf("unexpected $set document: %v", set)
	}

	if got := providerField(goIdentity.ProviderOAuthB); got != "providers.oauth_b" {
		t.Fatalf("unexpected provider field: %s", got)
	}
}
