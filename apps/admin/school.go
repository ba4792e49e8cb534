package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/databayt/hogwarts-sub013/core/school"
)

func (cli *commandLine) addSchool(ns school.NewSchool) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	sch, err := cli.schools.Create(context.Background(), ns)
	if err != nil {
		return err
	}
	cli.logger.Info("school created", map[string]interface{}{"id": sch.ID, "code": sch.Code})
	fmt.Fprintf(cli.out, "%s\t%s\n", sch.ID, sch.Code)
	return nil
}

func (cli *commandLine) listSchools() error {
	schools, err := cli.schools.Query(context.Background(), &school.QueryFilter{})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCODE\tNAME\tACTIVE")
	for _, sch := range schools {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", sch.ID, sch.Code, sch.Name, sch.IsActive)
	}
	return w.Flush()
}

// setSchoolStatus is the only way to (de)activate a school; the API refuses it.
func (cli *commandLine) setSchoolStatus(code string, active bool) error {
	ctx := context.Background()
	sch, err := cli.schools.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	us := school.UpdateSchool{IsActive: &active}
	if err = us.Validate(sch); err != nil {
		return err
	}
	if sch, err = cli.schools.Update(ctx, sch, us); err != nil {
		return err
	}
	cli.logger.Info("school status changed", map[string]interface{}{"code": sch.Code, "active": sch.IsActive})
	return nil
}
