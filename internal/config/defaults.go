package config

// Default returns the built-in configuration values. Paths are expanded
// during Load.
func Default() Config {
	return Config{
		Paths: Paths{
			VideosDir:  "~/.local/share/reelpress/videos",
			RunsDir:    "~/.local/share/reelpress/runs",
			CookiesDir: "~/.local/share/reelpress/cookies",
			LogDir:     "~/.local/share/reelpress/logs",
		},
		Store: Store{
			BaseURL:        "https://open.feishu.cn",
			SuccessLabel:   "执行成功",
			FailureLabel:   "执行失败",
			RequestTimeout: 30,
			UTCOffsetHours: 8,
			Fields: Fields{
				SourcePath:    "作品文件夹",
				Account:       "发布帐号",
				PublishTime:   "发布时间",
				Title:         "标题",
				Topics:        "必带话题_tags",
				ProductLink:   "发布链接",
				ProductTitle:  "商品短标题",
				Status:        "发布状态",
				ErrorText:     "错误信息",
				ExecutingHost: "执行机器",
				LastRunAt:     "最后执行时间",
			},
		},
		Browser: Browser{
			Headless: true,
		},
		Workflow: Workflow{
			ComposerReadyTimeout: 120,
			UploadTimeout:        900,
			ProductDialogTimeout: 15,
			PublishTimeout:       180,
			PollInterval:         2,
			CookieProbeTimeout:   15,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
