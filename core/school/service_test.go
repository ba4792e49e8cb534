package school_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/school"
	"github.com/databayt/hogwarts-sub013/testutil"
)

func TestCreate(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	ns := school.NewSchool{Name: " Hogwarts School ", Code: "Hogwarts", Email: "Office@Hogwarts.test"}
	require.NoError(t, ns.Validate())
	sch, err := env.Schools.Create(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, "Hogwarts School", sch.Name)
	assert.Equal(t, "hogwarts", sch.Code)
	assert.Equal(t, "office@hogwarts.test", sch.Email)
	assert.True(t, sch.IsActive)

	got, err := env.Schools.GetByCode(ctx, " HOGWARTS ")
	require.NoError(t, err)
	assert.Equal(t, sch.ID, got.ID)

	_, err = env.Schools.Create(ctx, ns)
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, school.ErrCodeExists)
	assert.Equal(t, "code", verr.Fields[0].Field)

	bad := school.NewSchool{Name: "Beauxbatons", Code: "beaux batons!"}
	assert.Error(t, bad.Validate())
}

func TestUpdateAndAvailability(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	sch := testutil.CreateSchool(t, env, "Durmstrang", "durmstrang")

	require.NoError(t, env.Schools.CheckAvailable(ctx, sch.ID))

	inactive := false
	us := school.UpdateSchool{Phone: "+47 555 0100", IsActive: &inactive}
	require.NoError(t, us.Validate(sch))
	updated, err := env.Schools.Update(ctx, sch, us)
	require.NoError(t, err)
	assert.Equal(t, "Durmstrang", updated.Name)
	assert.Equal(t, "+47 555 0100", updated.Phone)

	assert.ErrorIs(t, env.Schools.CheckAvailable(ctx, sch.ID), school.ErrUnavailable)
	assert.ErrorIs(t, env.Schools.CheckAvailable(ctx, "0b6b1c52-1d3c-4a55-9f3e-5f1d6a2f7c11"), school.ErrUnavailable)
}

func TestQuery(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.CreateSchool(t, env, "Hogwarts", "hogwarts")
	testutil.CreateSchool(t, env, "Beauxbatons", "beauxbatons")
	testutil.CreateSchool(t, env, "Ilvermorny", "ilvermorny")

	schools, err := env.Schools.Query(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, schools, 3)
	assert.Equal(t, "Beauxbatons", schools[0].Name)

	schools, err = env.Schools.Query(context.Background(), &school.QueryFilter{Search: "WART"})
	require.NoError(t, err)
	require.Len(t, schools, 1)
	assert.Equal(t, "hogwarts", schools[0].Code)
}
