// Package preview runs a local blue/green preview of an application with
// docker: it builds an image from the app directory and swaps the labeled
// preview container for the requested color. It stands in for the real
// serverless target during development; nothing in the deployment core
// depends on it.
package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/moby/go-archive"
	"github.com/rs/zerolog"
)

const (
	labelEnabled    = "slipway.enabled"
	labelDeployment = "slipway.deployment"
	labelColor      = "slipway.color"
)

type Deployer struct {
	cli *client.Client
}

func NewDeployer() (*Deployer, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Deployer{cli: cli}, nil
}

func (d *Deployer) Close() error { return d.cli.Close() }

// Deploy builds appDir into an image tagged with the version and replaces
// the running preview container for (deploymentID, color).
func (d *Deployer) Deploy(ctx context.Context, appDir, deploymentID, color, version string) error {
	log := zerolog.Ctx(ctx)

	imageTag, err := d.buildImage(ctx, appDir, deploymentID, color, version)
	if err != nil {
		return fmt.Errorf("build preview image: %w", err)
	}

	if err := d.removeExisting(ctx, deploymentID, color); err != nil {
		return err
	}

	containerName := fmt.Sprintf("%s-%s", deploymentID, color)
	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image: imageTag,
			Labels: map[string]string{
				labelEnabled:    "true",
				labelDeployment: deploymentID,
				labelColor:      color,
			},
		},
		&container.HostConfig{
			RestartPolicy: container.RestartPolicy{
				Name: container.RestartPolicyUnlessStopped,
			},
		}, nil, nil, containerName)
	if err != nil {
		return fmt.Errorf("create preview container: %w", err)
	}
	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start preview container: %w", err)
	}
	log.Info().Str("container", resp.ID).Str("color", color).Msg("started preview container")
	return nil
}

// Remove tears down every preview container for a deployment.
func (d *Deployer) Remove(ctx context.Context, deploymentID string) error {
	log := zerolog.Ctx(ctx)
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", labelEnabled+"=true"),
			filters.Arg("label", fmt.Sprintf("%s=%s", labelDeployment, deploymentID)),
		),
	})
	if err != nil {
		return fmt.Errorf("list preview containers: %w", err)
	}
	for _, c := range containers {
		if err := d.cli.ContainerStop(ctx, c.ID, container.StopOptions{}); err != nil {
			return fmt.Errorf("stop container %s: %w", c.ID, err)
		}
		if err := d.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{}); err != nil {
			return fmt.Errorf("remove container %s: %w", c.ID, err)
		}
		log.Info().Str("container", c.ID).Msg("removed preview container")
	}
	return nil
}

func (d *Deployer) buildImage(ctx context.Context, appDir, deploymentID, color, version string) (string, error) {
	log := zerolog.Ctx(ctx)
	buildContext, err := archive.TarWithOptions(appDir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("create build context: %w", err)
	}
	imageTag := fmt.Sprintf("%s-%s:%s", deploymentID, color, version)
	resp, err := d.cli.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags: []string{imageTag},
		Labels: map[string]string{
			labelEnabled:    "true",
			labelDeployment: deploymentID,
			labelColor:      color,
		},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return "", fmt.Errorf("image build: %w", err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var jm jsonmessage.JSONMessage
		if err := dec.Decode(&jm); err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("decode build output: %w", err)
		}
		if jm.Error != nil {
			return "", fmt.Errorf("image build: %s", jm.Error.Message)
		}
		if stream := strings.TrimSpace(jm.Stream); stream != "" {
			log.Debug().Msg(stream)
		}
	}
	return imageTag, nil
}

func (d *Deployer) removeExisting(ctx context.Context, deploymentID, color string) error {
	log := zerolog.Ctx(ctx)
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", labelEnabled+"=true"),
			filters.Arg("label", fmt.Sprintf("%s=%s", labelDeployment, deploymentID)),
			filters.Arg("label", fmt.Sprintf("%s=%s", labelColor, color)),
		),
	})
	if err != nil {
		return fmt.Errorf("list preview containers: %w", err)
	}
	for _, c := range containers {
		log.Info().Str("container", c.ID).Msg("replacing existing preview container")
		if err := d.cli.ContainerStop(ctx, c.ID, container.StopOptions{}); err != nil {
			return fmt.Errorf("stop container %s: %w", c.ID, err)
		}
		if err := d.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{}); err != nil {
			return fmt.Errorf("remove container %s: %w", c.ID, err)
		}
	}
	return nil
}
