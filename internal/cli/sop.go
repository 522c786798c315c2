package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"assaycore/pkg/domain"
)

var (
	sopID        string
	sopTemplate  string
	sopSteps     []string
	sopOperator  string
	sopSignature string
	sopFields    []string
)

var sopCmd = &cobra.Command{
	Use:   "sop",
	Short: "Sequence SOP workflow steps",
	Long: `SOP manages workflow instances: create one from a template or a bare
step list, start the next step, sign off the active step, and inspect state.

Examples:
  assayctl sop create --id run-42 --template elisa_basic
  assayctl sop start --id run-42 --operator jdoe --field operator=jdoe --field reagent_lot=L123
  assayctl sop signoff --id run-42 --signature jdoe --field plate_id=P7
  assayctl sop status --id run-42`,
}

var sopCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a workflow from a template or step list",
	RunE:  runSOPCreate,
}

var sopStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the next pending step",
	RunE:  runSOPStart,
}

var sopSignoffCmd = &cobra.Command{
	Use:   "signoff",
	Short: "Sign off the active step",
	RunE:  runSOPSignoff,
}

var sopStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-step execution records",
	RunE:  runSOPStatus,
}

var sopRequirementsCmd = &cobra.Command{
	Use:   "requirements",
	Short: "Show what each step demands before start and sign-off",
	RunE:  runSOPRequirements,
}

func init() {
	for _, cmd := range []*cobra.Command{sopCreateCmd, sopStartCmd, sopSignoffCmd, sopStatusCmd, sopRequirementsCmd} {
		cmd.Flags().StringVar(&sopID, "id", "", "workflow id (required)")
		_ = cmd.MarkFlagRequired("id")
		sopCmd.AddCommand(cmd)
	}
	sopCreateCmd.Flags().StringVar(&sopTemplate, "template", "", "SOP template name")
	sopCreateCmd.Flags().StringSliceVar(&sopSteps, "steps", nil, "ordered step names (alternative to --template)")
	sopStartCmd.Flags().StringVar(&sopOperator, "operator", "", "operator starting the step (required)")
	_ = sopStartCmd.MarkFlagRequired("operator")
	sopStartCmd.Flags().StringArrayVar(&sopFields, "field", nil, "start field as key=value (repeatable)")
	sopSignoffCmd.Flags().StringVar(&sopSignature, "signature", "", "sign-off signature (required)")
	_ = sopSignoffCmd.MarkFlagRequired("signature")
	sopSignoffCmd.Flags().StringArrayVar(&sopFields, "field", nil, "completion field as key=value (repeatable)")
}

func runSOPCreate(cmd *cobra.Command, args []string) error {
	if sopTemplate == "" && len(sopSteps) == 0 {
		return fmt.Errorf("either --template or --steps is required")
	}
	if sopTemplate != "" && len(sopSteps) > 0 {
		return fmt.Errorf("--template and --steps are mutually exclusive")
	}
	svc, err := newService()
	if err != nil {
		return err
	}
	ctx := context.Background()
	var workflow domain.Workflow
	if sopTemplate != "" {
		workflow, err = svc.CreateWorkflowFromTemplate(ctx, sopID, sopTemplate)
	} else {
		workflow, err = svc.CreateWorkflow(ctx, sopID, sopSteps)
	}
	if err != nil {
		return err
	}
	return printJSON(workflow)
}

func runSOPStart(cmd *cobra.Command, args []string) error {
	fields, err := parseFields(sopFields)
	if err != nil {
		return err
	}
	svc, err := newService()
	if err != nil {
		return err
	}
	record, err := svc.StartStep(context.Background(), sopID, sopOperator, fields)
	if err != nil {
		return err
	}
	return printJSON(record)
}

func runSOPSignoff(cmd *cobra.Command, args []string) error {
	fields, err := parseFields(sopFields)
	if err != nil {
		return err
	}
	svc, err := newService()
	if err != nil {
		return err
	}
	record, err := svc.SignOffStep(context.Background(), sopID, sopSignature, fields)
	if err != nil {
		return err
	}
	return printJSON(record)
}

func runSOPStatus(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	summary, err := svc.WorkflowSummary(context.Background(), sopID)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func runSOPRequirements(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	reqs, err := svc.WorkflowRequirements(context.Background(), sopID)
	if err != nil {
		return err
	}
	return printJSON(reqs)
}

func parseFields(pairs []string) (domain.FieldValues, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	fields := make(domain.FieldValues, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q (want key=value)", pair)
		}
		fields[key] = value
	}
	return fields, nil
}
