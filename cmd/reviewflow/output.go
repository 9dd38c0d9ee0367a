package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dukex/reviewflow/pkg/models"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

func printSteps(w io.Writer, steps ...*models.Step) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "ID\tNAME\tUSERS\tTEAMS")

	for _, step := range steps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", step.ID, step.Name, joinIDs(step.UserIDs), joinIDs(step.TeamIDs))
	}

	return tw.Flush()
}

func printResponses(w io.Writer, responses ...*models.FormResponse) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "ID\tFLOW\tSTEP\tSUBMITTED BY\tWAITING SINCE")

	for _, r := range responses {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.FlowID, r.CurrentStepID, r.SubmittedBy, r.StepEnteredAt.Format(time.RFC3339))
	}

	return tw.Flush()
}

func joinIDs(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}

	return strings.Join(ids, ",")
}
