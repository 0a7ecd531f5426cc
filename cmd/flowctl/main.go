// flowctl is a small operator CLI for the approval-flow service. It talks to
// the REST API so it works against any deployment, local or remote.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"approval-flow/backend/pkg/models"
)

var (
	serverURL string
	token     string
)

func main() {
	root := &cobra.Command{
		Use:   "flowctl",
		Short: "Operate the approval-flow service from the command line",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the approval-flow server")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("FLOWCTL_TOKEN"), "Bearer token for authentication")

	root.AddCommand(templatesCmd())
	root.AddCommand(instancesCmd())
	root.AddCommand(instantiateCmd())
	root.AddCommand(transitionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage workflow templates",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			var templates []*models.Template
			if err := doRequest(http.MethodGet, "/api/v1/templates", nil, &templates); err != nil {
				return err
			}
			for _, t := range templates {
				desc := ""
				if t.Description != nil {
					desc = *t.Description
				}
				fmt.Printf("%s  %s  %s\n", t.ID, t.Name, desc)
			}
			return nil
		},
	})

	var description string
	var stages []string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a workflow template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stageInputs := make([]map[string]string, 0, len(stages))
			for _, name := range stages {
				stageInputs = append(stageInputs, map[string]string{"name": name})
			}
			body := map[string]interface{}{
				"name":        args[0],
				"description": description,
				"stages":      stageInputs,
			}
			var created models.Template
			if err := doRequest(http.MethodPost, "/api/v1/templates", body, &created); err != nil {
				return err
			}
			fmt.Printf("Created template %s\n", created.ID)
			return nil
		},
	}
	create.Flags().StringVar(&description, "description", "", "Template description")
	create.Flags().StringArrayVar(&stages, "stage", nil, "Stage name, in order (repeatable)")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <template-id>",
		Short: "Show a template and its stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var detail json.RawMessage
			if err := doRequest(http.MethodGet, "/api/v1/templates/"+args[0], nil, &detail); err != nil {
				return err
			}
			return printJSON(detail)
		},
	})

	return cmd
}

func instancesCmd() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "instances",
		Short: "Manage flow instances",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			var instances []*models.Instance
			if err := doRequest(http.MethodGet, "/api/v1/instances?filter="+filter, nil, &instances); err != nil {
				return err
			}
			for _, in := range instances {
				state := "in progress"
				if in.Finalized {
					state = "finalized"
				}
				fmt.Printf("%s  %-12s  %s\n", in.ID, state, in.Name)
			}
			return nil
		},
	}
	list.Flags().StringVar(&filter, "filter", "all", "Filter: all, in_progress or finalized")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <instance-id>",
		Short: "Show an instance with stages and movement history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var detail models.InstanceDetail
			if err := doRequest(http.MethodGet, "/api/v1/instances/"+args[0], nil, &detail); err != nil {
				return err
			}
			fmt.Printf("Instance: %s (%s)\n", detail.Instance.Name, detail.Instance.ID)
			for _, s := range detail.Stages {
				mark := " "
				if s.Completed {
					mark = "x"
				}
				cursor := "  "
				if detail.CurrentStage != nil && s.ID == detail.CurrentStage.ID {
					cursor = "->"
				}
				fmt.Printf("%s [%s] %d. %s (%s)\n", cursor, mark, s.Position, s.Name, s.ID)
			}
			if len(detail.Movements) > 0 {
				fmt.Println("Movements:")
				for _, m := range detail.Movements {
					fmt.Printf("  %s  %-8s  %s\n", m.RecordedAt.Format(time.RFC3339), m.ActionName, m.Comment)
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <instance-id>",
		Short: "Delete an instance, its stages and its movements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRequest(http.MethodDelete, "/api/v1/instances/"+args[0], nil, nil)
		},
	})

	return cmd
}

func instantiateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instantiate <template-id> <name>",
		Short: "Clone a template into a running flow instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"template_id": args[0], "name": args[1]}
			var instance models.Instance
			if err := doRequest(http.MethodPost, "/api/v1/instances", body, &instance); err != nil {
				return err
			}
			fmt.Printf("Created instance %s\n", instance.ID)
			return nil
		},
	}
}

func transitionCmd() *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "transition <instance-id> <stage-id> <advance|retreat>",
		Short: "Advance or retreat one stage of a flow",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{
				"stage_id": args[1],
				"action":   args[2],
				"comment":  comment,
			}
			var result models.TransitionResult
			if err := doRequest(http.MethodPost, "/api/v1/instances/"+args[0]+"/transitions", body, &result); err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", result.Status, result.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "Free-text comment recorded on the movement")
	return cmd
}

func doRequest(method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, serverURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %s: %s", resp.Status, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
