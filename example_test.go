package formguard_test

import (
	"context"
	"fmt"

	"github.com/networked-ai/formguard"
)

func ExampleValidateFields() {
	rec := formguard.NewRecord()
	defer rec.Close()

	rec.Register("username", "ab", required, minLen(6))
	rec.Group("settings").Register("email", "", required)

	ok := formguard.ValidateFields(context.Background(), rec, "username", "settings")
	fmt.Println("ok:", ok)

	iss, _ := formguard.AsIssues(rec.Err())
	for _, it := range iss {
		fmt.Println(it.Path, it.Code)
	}
	// Output:
	// ok: false
	// /username minlength
	// /settings/email required
}
